package output

type QueueStats struct {
	Pool string `json:"pool"`
	Size int    `json:"size"`
}

package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/application/metric"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

// Conn - то, что нужно реестру от WS соединения; *websocket.Conn подходит
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnectionRegistry связывает участника с его текущим живым соединением.
// При переподключении handle меняется, и старое соединение больше не получает событий.
type ConnectionRegistry interface {
	Add(models.ParticipantID, Conn) models.ConnHandle

	// Remove удаляет соединение, только если handle все еще текущий
	Remove(models.ParticipantID, models.ConnHandle) bool
	IsCurrent(models.ParticipantID, models.ConnHandle) bool

	// Write возвращает domain.ErrNotReady, если у участника нет живого соединения
	Write(models.ParticipantID, any) error

	Count() int
}

type safeWS struct {
	conn   Conn
	handle models.ConnHandle
	mu     sync.Mutex
}

type wsConnectionRepository struct {
	writeTimeout time.Duration

	// wsConns хранит map[participant_id]*safeWS
	wsConns map[models.ParticipantID]*safeWS

	mu sync.RWMutex
}

func NewWSConnectionRepository(writeTimeout time.Duration) ConnectionRegistry {
	return &wsConnectionRepository{
		writeTimeout: writeTimeout,
		wsConns:      make(map[models.ParticipantID]*safeWS, 10),
	}
}

func (w *wsConnectionRepository) Add(participantID models.ParticipantID, conn Conn) models.ConnHandle {
	handle := models.ConnHandle(uuid.NewString())

	w.mu.Lock()
	previous, replaced := w.wsConns[participantID]
	w.wsConns[participantID] = &safeWS{conn: conn, handle: handle}
	w.mu.Unlock()

	if replaced {
		// Старое соединение закрываем: его цикл чтения завершится и увидит, что handle уже не текущий
		previous.mu.Lock()
		_ = previous.conn.Close()
		previous.mu.Unlock()

		slog.Info(
			"participant reconnected, previous connection closed",
			slog.String(constant.ParticipantID, string(participantID)),
		)
	} else {
		metric.IncrementWSActiveConnections()
	}

	return handle
}

func (w *wsConnectionRepository) Remove(participantID models.ParticipantID, handle models.ConnHandle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	current, exists := w.wsConns[participantID]
	if !exists || current.handle != handle {
		return false
	}

	delete(w.wsConns, participantID)
	metric.DecrementWSActiveConnections()

	return true
}

func (w *wsConnectionRepository) IsCurrent(participantID models.ParticipantID, handle models.ConnHandle) bool {
	safews, ok := w.getSafeWS(participantID)

	return ok && safews.handle == handle
}

func (w *wsConnectionRepository) Write(participantID models.ParticipantID, payload any) error {
	safews, ok := w.getSafeWS(participantID)
	if !ok {
		return fmt.Errorf("write to %s: %w", participantID, domain.ErrNotReady)
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	if w.writeTimeout > 0 {
		if err := safews.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if err := safews.conn.WriteJSON(payload); err != nil {
		slog.Error(
			"write to websocket",
			slog.Any(constant.Error, err),
			slog.String(constant.ParticipantID, string(participantID)),
		)

		return fmt.Errorf("write to websocket: %w", err)
	}

	return nil
}

func (w *wsConnectionRepository) getSafeWS(participantID models.ParticipantID) (*safeWS, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	conn, ok := w.wsConns[participantID]
	return conn, ok
}

func (w *wsConnectionRepository) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.wsConns)
}

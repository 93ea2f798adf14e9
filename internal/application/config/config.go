package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug      bool          `env:"DEBUG" envDefault:"false"`
	Port       string        `env:"PORT" envDefault:"3000"`
	MetricPort string        `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string        `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string        `env:"JWT_SECRET,required,notEmpty"`
	JWTTTL     time.Duration `env:"JWT_TTL" envDefault:"72h"`

	STUNServers []string `env:"STUN_SERVERS" envDefault:"stun:stun.l.google.com:19302" envSeparator:","`

	TurnUDPServer webrtc.ICEServer
	TurnTCPServer webrtc.ICEServer

	CoturnServer CoturnConfig
	Postgres     PostgresConfig
	Queue        QueueConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	Matching     MatchingConfig
	WebSocket    WebSocketConfig
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"randomtalk"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`

	ConnectTimeout  time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxOpenConns    int           `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

// CoturnConfig - если Host пустой, клиентам отдаются только STUN сервера
type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret - нужен для генерации временных кредов для фронта
	Secret string `env:"COTURN_SECRET"`
}

func (c CoturnConfig) Enabled() bool {
	return c.Host != ""
}

type QueueConfig struct {
	MaxSize int `env:"QUEUE_MAX_SIZE" envDefault:"1000"`

	// StoreTimeout ограничивает любое обращение к очередям и хранилищу сессий
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`

	// WaitPerPosition - оценка ожидания для fast-queue-joined
	WaitPerPosition time.Duration `env:"QUEUE_WAIT_PER_POSITION" envDefault:"5s"`

	PartitionByRegion bool `env:"QUEUE_PARTITION_BY_REGION" envDefault:"false"`

	// IdlePoolTTL - пустой пул без активности останавливается
	IdlePoolTTL time.Duration `env:"QUEUE_IDLE_POOL_TTL" envDefault:"10m"`
}

type SessionConfig struct {
	TTL                  time.Duration `env:"SESSION_TTL" envDefault:"5m"`
	OfferTTL             time.Duration `env:"SESSION_OFFER_TTL" envDefault:"30s"`
	AnswerTTL            time.Duration `env:"SESSION_ANSWER_TTL" envDefault:"30s"`
	CandidateTTL         time.Duration `env:"SESSION_CANDIDATE_TTL" envDefault:"60s"`
	MaxCandidatesPerSide int           `env:"SESSION_MAX_CANDIDATES" envDefault:"64"`
	MaxSessions          int           `env:"SESSION_MAX_ACTIVE" envDefault:"100000"`
	SweepInterval        time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5s"`
}

type RateLimitConfig struct {
	Window time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`

	JoinQueue        int `env:"RATE_LIMIT_JOIN_QUEUE" envDefault:"10"`
	LeaveQueue       int `env:"RATE_LIMIT_LEAVE_QUEUE" envDefault:"30"`
	Offer            int `env:"RATE_LIMIT_OFFER" envDefault:"20"`
	Answer           int `env:"RATE_LIMIT_ANSWER" envDefault:"20"`
	Candidate        int `env:"RATE_LIMIT_CANDIDATE" envDefault:"300"`
	Message          int `env:"RATE_LIMIT_MESSAGE" envDefault:"60"`
	Reaction         int `env:"RATE_LIMIT_REACTION" envDefault:"60"`
	EndCall          int `env:"RATE_LIMIT_END_CALL" envDefault:"30"`
	ConnectionStatus int `env:"RATE_LIMIT_CONNECTION_STATUS" envDefault:"30"`
	Report           int `env:"RATE_LIMIT_REPORT" envDefault:"5"`
}

type MatchingConfig struct {
	// WeightsFile - json с весами матчера, перечитывается при изменении
	WeightsFile string `env:"MATCHING_WEIGHTS_FILE"`

	RecentPartnerWindow time.Duration `env:"MATCHING_RECENT_PARTNER_WINDOW" envDefault:"1h"`
	RecentPartnerMax    int           `env:"MATCHING_RECENT_PARTNER_MAX" envDefault:"20"`

	DefaultReputation int `env:"REPUTATION_DEFAULT" envDefault:"50"`
	ReportPenalty     int `env:"REPUTATION_REPORT_PENALTY" envDefault:"5"`
}

type WebSocketConfig struct {
	MaxMessageBytes int64         `env:"WS_MAX_MESSAGE_BYTES" envDefault:"81920"`
	PingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	ReadTimeout     time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if c.CoturnServer.Enabled() {
		c.TurnUDPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}

		c.TurnTCPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}
	}

	return &c, nil
}

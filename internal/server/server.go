package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opsline/quell/internal/chat"
	"github.com/opsline/quell/internal/config"
	"github.com/opsline/quell/internal/core"
	"github.com/opsline/quell/internal/core/model"
	"github.com/opsline/quell/internal/core/normalize"
	"github.com/opsline/quell/internal/llm"
	"github.com/opsline/quell/internal/store"
	"github.com/opsline/quell/internal/vector"
)

type Server struct {
	Engine *core.Engine
	Store  *store.Postgres
	Chat   *chat.Service

	auditLive bool
}

func NewServer() *Server {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyEnvOverrides(cfg)

	// Default to Ollama if provider is empty
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
		cfg.LLM.Model = "llama3:latest"
		cfg.LLM.EmbeddingModel = "nomic-embed-text"
		cfg.LLM.BaseURL = "http://localhost:11434"
	}

	pg, err := store.New(context.Background(), postgresConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}

	llmClient, embedderClient, err := llm.NewClient(context.Background(), cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	if embedderClient == nil {
		log.Printf("Warning: provider %s has no embedding support; every ingestion will be stored degraded", cfg.LLM.Provider)
	}

	normalizer := normalize.New(normalize.FieldPaths(cfg.Sources["default"]))
	engine := core.NewEngine(pg, embedderClient, vector.NewMemory(), normalizer, cfg.Dedup.SimilarityThreshold)

	return &Server{
		Engine:    engine,
		Store:     pg,
		Chat:      chat.NewService(pg, llmClient, cfg.Chat.Prompt),
		auditLive: cfg.Dedup.AuditLive,
	}
}

func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Postgres.Database = v
	}
}

func postgresConfig(cfg *config.Config) *store.Config {
	pc := store.DefaultConfig()
	if cfg.Postgres.Host != "" {
		pc.Host = cfg.Postgres.Host
	}
	if cfg.Postgres.Port != 0 {
		pc.Port = cfg.Postgres.Port
	}
	if cfg.Postgres.User != "" {
		pc.User = cfg.Postgres.User
	}
	if cfg.Postgres.Password != "" {
		pc.Password = cfg.Postgres.Password
	}
	if cfg.Postgres.Database != "" {
		pc.Database = cfg.Postgres.Database
	}
	if cfg.Postgres.SSLMode != "" {
		pc.SSLMode = cfg.Postgres.SSLMode
	}
	return pc
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/deduplicate_alert", s.Deduplicate)
	r.GET("/alerts", s.ListAlerts)
	r.GET("/alerts/grouped", s.GroupedAlerts)
	r.GET("/alerts/counts", s.AlertCounts)
	r.GET("/alerts/summary", s.AlertSummary)
	r.POST("/alerts/grouped/chat", s.CreateChatMessage)
	r.GET("/alerts/grouped/chat/:incident_id", s.ChatHistory)
	r.GET("/alerts/:incident_id", s.AlertDetail)

	return r
}

func (s *Server) Deduplicate(c *gin.Context) {
	var raw model.RawEvent
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	decision, err := s.Engine.Submit(c.Request.Context(), raw, core.Options{RecordAudit: s.auditLive})
	if err != nil {
		log.Printf("Failed to process alert: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process alert"})
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (s *Server) ListAlerts(c *gin.Context) {
	alerts, err := s.Store.FetchAll(c.Request.Context())
	if err != nil {
		log.Printf("Failed to list alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) GroupedAlerts(c *gin.Context) {
	grouped, err := s.Store.FetchGrouped(c.Request.Context())
	if err != nil {
		log.Printf("Failed to group alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to group alerts"})
		return
	}
	c.JSON(http.StatusOK, grouped)
}

func (s *Server) AlertCounts(c *gin.Context) {
	counts, err := s.Store.Counts(c.Request.Context())
	if err != nil {
		log.Printf("Failed to count alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count alerts"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (s *Server) AlertSummary(c *gin.Context) {
	summary, err := s.Store.Summary(c.Request.Context())
	if err != nil {
		log.Printf("Failed to summarize alerts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize alerts"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) AlertDetail(c *gin.Context) {
	rec, err := s.Store.FetchByID(c.Request.Context(), c.Param("incident_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		log.Printf("Failed to fetch alert: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type ChatRequest struct {
	IncidentID string `json:"incident_id"`
	Query      string `json:"query"`
}

func (s *Server) CreateChatMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IncidentID == "" || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := s.Chat.Ask(c.Request.Context(), req.IncidentID, req.Query)
	if err != nil {
		log.Printf("Failed to answer chat query: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer query"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) ChatHistory(c *gin.Context) {
	msgs, err := s.Chat.History(c.Request.Context(), c.Param("incident_id"))
	if err != nil {
		log.Printf("Failed to fetch chat history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chat history"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Package webui は、タスクの実行状態とメトリクスを公開する小さなHTTPサーバーです。
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"GoWikidotForum/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server は、状態表示用のWebサーバーのインスタンスを管理します。
type Server struct {
	server   *http.Server
	listener net.Listener
}

// NewRouter は、状態APIとメトリクスのルーティングを構築します。
func NewRouter(board *core.StatusBoard) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, board.Snapshot())
	})
	r.Get("/api/status/{task}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "task")
		for _, st := range board.Snapshot() {
			if st.TaskName == name {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("タスク '%s' は存在しません", name)})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: レスポンスJSONのエンコードに失敗しました: %v", err)
	}
}

// Start は、addr でリッスンしてサーバーを非同期で起動します。
func Start(addr string, board *core.StatusBoard) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("状態サーバーのリッスンに失敗しました (addr=%s): %w", addr, err)
	}

	s := &Server{
		server: &http.Server{
			Handler:      NewRouter(board),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  time.Minute,
		},
		listener: listener,
	}

	go func() {
		log.Printf("状態サーバーを http://%s で起動します。", listener.Addr())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ERROR: 状態サーバーが異常終了しました: %v", err)
		}
	}()
	return s, nil
}

// Addr は、実際にリッスンしているアドレスを返します。
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown は、サーバーを安全に停止します。
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("状態サーバーのシャットダウンに失敗しました: %w", err)
	}
	log.Println("状態サーバーがシャットダウンしました。")
	return nil
}

package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/metrics"
	"github.com/RecoveryAshes/AutoFollow/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewControlRouter 本地控制服务路由
//
//	POST /command          命令面 (start/stop/getStatus)
//	GET  /status           运行状态
//	GET  /history?format=  导出历史 (json/csv)
//	GET  /metrics          prometheus 指标
func NewControlRouter(d *Dispatcher, history *storage.History) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger)

	r.Post("/command", func(w http.ResponseWriter, r *http.Request) {
		var cmd Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Error: fmt.Sprintf("无效的命令: %v", err)})
			return
		}
		resp := d.Handle(cmd)
		code := http.StatusOK
		if resp.Unknown {
			code = http.StatusNotFound
		} else if !resp.OK {
			code = http.StatusConflict
		}
		writeJSON(w, code, resp)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Handle(Command{Type: CmdGetStatus}))
	})

	if history != nil {
		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			format := r.URL.Query().Get("format")
			if format == "" {
				format = storage.FormatJSON
			}
			if format == storage.FormatCSV {
				w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			} else {
				w.Header().Set("Content-Type", "application/json")
			}
			if _, err := history.Export(w, format); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
		})
	}

	r.Handle("/metrics", metrics.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("写入响应失败")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("控制请求")
	})
}

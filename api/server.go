// HTTP状态接口
// 功能：对外暴露控制器与各路口的运行状态，只读，供监控面板
// 与现场排障使用
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils"
)

var log = logrus.WithField("module", "api")

// Server 状态HTTP服务
// 说明：读取的都是prepare阶段发布的只读快照，与控制循环无锁竞争
type Server struct {
	ctx entity.ITaskContext
	srv *http.Server
}

// statusResponse GET /status 的响应体
type statusResponse struct {
	Step      int32   `json:"step"`
	Time      float64 `json:"time"`
	Clock     string  `json:"clock"`
	Junctions int     `json:"junctions"`
}

// NewServer 创建状态HTTP服务
// 参数：ctx-任务上下文，addr-监听地址（如":8080"）
func NewServer(ctx entity.ITaskContext, addr string) *Server {
	s := &Server{ctx: ctx}
	router := httprouter.New()
	router.GET("/status", s.handleStatus)
	router.GET("/junctions", s.handleJunctions)
	router.GET("/junctions/:id", s.handleJunction)
	s.srv = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start 启动监听
// 说明：在独立goroutine中运行，监听失败记录错误但不中断控制循环
func (s *Server) Start() {
	go func() {
		log.Infof("status api listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("status api: %v", err)
		}
	}()
}

// Stop 优雅停机
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := s.ctx.Clock()
	writeJSON(w, http.StatusOK, statusResponse{
		Step:      c.InternalStep,
		Time:      c.T,
		Clock:     c.String(),
		Junctions: len(s.ctx.JunctionManager().All()),
	})
}

// handleJunctions 全部路口状态，?id=1,2时只返回指定路口
func (s *Server) handleJunctions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	all := s.ctx.JunctionManager().All()
	ids, err := parseIDs(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	dataMap := make(map[int32]entity.IJunction, len(all))
	for _, j := range all {
		dataMap[j.ID()] = j
	}
	selected, failedIDs := utils.Find(dataMap, all, ids)
	if len(failedIDs) > 0 {
		log.Debugf("status query for unknown junction ids %v", failedIDs)
	}
	statuses := make([]entity.JunctionStatus, 0, len(selected))
	for _, j := range selected {
		statuses = append(statuses, j.Status())
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleJunction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid junction id"})
		return
	}
	j, err := s.ctx.JunctionManager().GetOrError(int32(id))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, j.Status())
}

// parseIDs 解析逗号分隔的路口ID列表
func parseIDs(raw string) ([]int32, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int32, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, errors.New("invalid junction id " + p)
		}
		ids = append(ids, int32(id))
	}
	return ids, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode response: %v", err)
	}
}

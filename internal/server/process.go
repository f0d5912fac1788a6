package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/task"
	"github.com/wudi/readease/internal/util"
)

type ProcessHandler struct {
	log     zerolog.Logger
	manager *task.Manager
	typ     task.Type
}

// NewProcessHandler starts tasks of the type named by the process_type route
// variable, or always of typ when it is not empty.
func NewProcessHandler(log zerolog.Logger, manager *task.Manager, typ task.Type) *ProcessHandler {
	return &ProcessHandler{log: log, manager: manager, typ: typ}
}

type ProcessResponse struct {
	TaskID   string `json:"task_id"`
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
}

func (h *ProcessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *ProcessHandler) do(r *http.Request) (*ProcessResponse, error) {
	ctx := r.Context()

	typ := h.typ
	if typ == "" {
		var err error
		name := mux.Vars(r)["process_type"]
		typ, err = task.ParseType(name)
		if err != nil {
			return nil, util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeUnsupportedProcessType), util.WithAPIErrorMsg("Unsupported process type: %s", name))
		}
	}

	up, err := readUpload(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var opts task.Options
	if raw := r.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return nil, util.NewAPIError(util.ErrBadRequest, errors.WithStack(err), util.WithAPIErrorCode(util.ErrorCodeInvalidJSON), util.WithAPIErrorMsg("options must be a JSON object"))
		}
	}

	t, err := h.manager.Submit(ctx, typ, up.filename, up.data, r.URL.Query().Get("model_size"), opts)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrQueueFull):
			return nil, util.NewAPIError(util.ErrUnavailable, err, util.WithAPIErrorCode(util.ErrorCodeQueueFull), util.WithAPIErrorMsg("too many tasks in progress, retry later"))
		case errors.Is(err, task.ErrUnsupportedType):
			return nil, util.NewAPIError(util.ErrBadRequest, err, util.WithAPIErrorCode(util.ErrorCodeUnsupportedProcessType), util.WithAPIErrorMsg("Unsupported process type: %s", typ))
		}
		return nil, errors.Wrapf(err, "failed to start %s task", typ)
	}

	return &ProcessResponse{
		TaskID:   t.ID,
		Message:  fmt.Sprintf("File uploaded and %s task started", typ),
		FilePath: t.FilePath,
	}, nil
}

type TaskHandler struct {
	log     zerolog.Logger
	manager *task.Manager
}

func NewTaskHandler(log zerolog.Logger, manager *task.Manager) *TaskHandler {
	return &TaskHandler{log: log, manager: manager}
}

type TaskResponse struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
	Result task.Result `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (h *TaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *TaskHandler) do(r *http.Request) (*TaskResponse, error) {
	ctx := r.Context()
	id := mux.Vars(r)["task_id"]

	t, err := h.manager.Get(ctx, id)
	if err != nil {
		if errors.Is(err, task.ErrNotExist) {
			return nil, util.NewAPIError(util.ErrNotExist, err, util.WithAPIErrorCode(util.ErrorCodeTaskNotFound), util.WithAPIErrorMsg("Task not found"))
		}
		return nil, errors.WithStack(err)
	}
	return &TaskResponse{TaskID: t.ID, Status: t.Status, Result: t.Result, Error: t.Error}, nil
}

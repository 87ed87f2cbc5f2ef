// Package rpcserver is the thin HTTP adapter over internal/ops (spec.md §6,
// SPEC_FULL §4.9): a single POST /rpc endpoint decoding {operation, args}
// and dispatching by name, mapping vcserr.Kind to an HTTP status and
// prefixing the result string with the kind name on failure (spec.md §7).
// It carries no auth, TLS or rate limiting of its own — those remain true
// external collaborators per spec.md §1.
package rpcserver

import (
	"context"
	"net/http"

	"github.com/biscuitwizard/moovcs/internal/ops"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// request is the wire shape of an RPC call (spec.md §6).
type request struct {
	Operation string   `json:"operation"`
	Args      []string `json:"args"`
}

// response is the wire shape of an RPC reply (spec.md §6). Result is always
// a string: either the JSON encoding of a successful call's return value, or
// "<Kind>: <message>" on failure.
type response struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// handlerFunc dispatches one named operation against args, returning
// whatever value should be JSON-encoded into a successful response's result.
// ctx carries the request's deadline through to any remote call the
// operation makes (spec.md §5 cancellation).
type handlerFunc func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error)

// New builds the chi.Router exposing POST /rpc over engine.
func New(engine *ops.Engine, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Post("/rpc", newRPCHandler(engine, log))
	return r
}

func newRPCHandler(engine *ops.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, response{Success: false, Result: "InvalidInput: malformed request body"})
			return
		}

		h, ok := handlers[req.Operation]
		if !ok {
			writeJSON(w, http.StatusBadRequest, response{Success: false, Result: "InvalidInput: unknown operation " + req.Operation})
			return
		}

		result, err := h(r.Context(), engine, req.Args)
		if err != nil {
			kind := vcserr.KindOf(err)
			log.Warn("rpc operation failed", zap.String("operation", req.Operation), zap.String("kind", kind.String()), zap.Error(err))
			writeJSON(w, statusFor(kind), response{Success: false, Result: kind.String() + ": " + err.Error()})
			return
		}

		encoded, err := json.Marshal(result)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, response{Success: false, Result: "Storage: " + err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, response{Success: true, Result: string(encoded)})
	}
}

// statusFor maps a Kind to an HTTP status. NotFound/InvalidInput/Storage
// follow spec.md §6 literally (404/400/500); the remaining kinds are given
// the closest conventional REST status (spec.md §7's enumeration, SPEC_FULL
// §7 "maps Kind -> HTTP status exactly as spec.md §7/§6 describe").
func statusFor(k vcserr.Kind) int {
	switch k {
	case vcserr.NotFound:
		return http.StatusNotFound
	case vcserr.Conflict:
		return http.StatusConflict
	case vcserr.InvalidInput:
		return http.StatusBadRequest
	case vcserr.InvalidState:
		return http.StatusConflict
	case vcserr.Remote:
		return http.StatusBadGateway
	case vcserr.Storage, vcserr.Integrity:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func requireArg(op string, args []string, i int) (string, error) {
	if i >= len(args) || args[i] == "" {
		return "", vcserr.New(op, vcserr.InvalidInput, "missing required argument")
	}
	return args[i], nil
}

var handlers = map[string]handlerFunc{
	"object_get": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		name, err := requireArg("object_get", args, 0)
		if err != nil {
			return nil, err
		}
		text, digest, version, err := e.ObjectGet(name)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"text": text, "digest": digest, "version": version}, nil
	},
	"object_list": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		return e.ObjectList()
	},
	"object_update": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		name, err := requireArg("object_update", args, 0)
		if err != nil {
			return nil, err
		}
		text, err := requireArg("object_update", args, 1)
		if err != nil {
			return nil, err
		}
		return e.ObjectUpdate(name, text)
	},
	"object_delete": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		name, err := requireArg("object_delete", args, 0)
		if err != nil {
			return nil, err
		}
		return e.ObjectDelete(name)
	},
	"object_rename": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		from, err := requireArg("object_rename", args, 0)
		if err != nil {
			return nil, err
		}
		to, err := requireArg("object_rename", args, 1)
		if err != nil {
			return nil, err
		}
		return e.ObjectRename(from, to)
	},
	"object_switch": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		name, err := requireArg("object_switch", args, 0)
		if err != nil {
			return nil, err
		}
		targetID, err := requireArg("object_switch", args, 1)
		if err != nil {
			return nil, err
		}
		force := argOr(args, 2, "") == "true"
		return e.ObjectSwitch(name, vcstypes.Digest(targetID), force)
	},
	"object_history": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		name, err := requireArg("object_history", args, 0)
		if err != nil {
			return nil, err
		}
		return e.ObjectHistory(name)
	},
	"change_create": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		name, err := requireArg("change_create", args, 0)
		if err != nil {
			return nil, err
		}
		author := argOr(args, 1, "")
		description := argOr(args, 2, "")
		return e.ChangeCreate(name, author, description)
	},
	"change_stash": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		return e.ChangeStash()
	},
	"change_switch": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		id, err := requireArg("change_switch", args, 0)
		if err != nil {
			return nil, err
		}
		return e.ChangeSwitch(vcstypes.Digest(id))
	},
	"change_submit": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		return e.ChangeSubmit()
	},
	"change_approve": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		id, err := requireArg("change_approve", args, 0)
		if err != nil {
			return nil, err
		}
		return e.ChangeApprove(vcstypes.Digest(id))
	},
	"change_abandon": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		return e.ChangeAbandon()
	},
	"change_list": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		if len(args) == 0 || args[0] == "" {
			return e.ChangeList(nil)
		}
		status := vcstypes.ChangeStatus(args[0])
		return e.ChangeList(&status)
	},
	"status": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		return e.Status()
	},
	"clone_export": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		return e.CloneExport()
	},
	"clone_import": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		url, err := requireArg("clone_import", args, 0)
		if err != nil {
			return nil, err
		}
		var apiKey *string
		if k := argOr(args, 1, ""); k != "" {
			apiKey = &k
		}
		return e.CloneImport(ctx, url, apiKey)
	},
	"index_calc_delta": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		since, err := requireArg("index_calc_delta", args, 0)
		if err != nil {
			return nil, err
		}
		return e.IndexCalcDelta(since)
	},
	"index_update": func(ctx context.Context, e *ops.Engine, args []string) (interface{}, error) {
		return e.IndexUpdate(ctx)
	},
}

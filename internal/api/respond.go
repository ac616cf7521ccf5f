package api

import (
	"encoding/json"
	"net/http"

	xerrors "ProofChain/internal/errors"
)

var errShuttingDown = xerrors.New(xerrors.CodeInitializationFailure, "服务已关闭")

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TxID    string `json:"tx_id,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError 将统一错误映射为状态码与 {"error": {...}} 响应体。
func writeError(w http.ResponseWriter, err error) {
	writeErrorWithTx(w, err, "")
}

func writeErrorWithTx(w http.ResponseWriter, err error, txID string) {
	writeJSON(w, xerrors.HTTPStatusOf(err), errorEnvelope{Error: errorBody{
		Code:    string(xerrors.CodeOf(err)),
		Message: xerrors.MessageOf(err),
		TxID:    txID,
	}})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"ProofChain/internal/auth"
	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/host"
	"ProofChain/internal/proofs"
	"ProofChain/internal/receipt"
)

// CertifyRequest 是 POST /api/v1/proofs 的请求体。
type CertifyRequest struct {
	ProofID   string  `json:"proof_id"`
	ProofText string  `json:"proof_text"`
	Metadata  *string `json:"metadata,omitempty"`
}

// UpdateRequest 是 PUT /api/v1/proofs/{proofID} 的请求体。
type UpdateRequest struct {
	ProofText string  `json:"proof_text"`
	Metadata  *string `json:"metadata,omitempty"`
}

// ProofResponse 描述一条证明记录。字符串字段按 UTF-8 解读，
// *_hex 字段携带原始字节，非 UTF-8 内容以它们为准。
type ProofResponse struct {
	Owner        string `json:"owner"`
	ProofID      string `json:"proof_id"`
	ProofText    string `json:"proof_text"`
	Metadata     string `json:"metadata"`
	ProofIDHex   string `json:"proof_id_hex"`
	ProofTextHex string `json:"proof_text_hex"`
	MetadataHex  string `json:"metadata_hex"`
	Timestamp    uint64 `json:"timestamp"`
}

func toProofResponse(owner proofs.Identity, rec proofs.Record) ProofResponse {
	return ProofResponse{
		Owner:        owner.Hex(),
		ProofID:      string(rec.ProofID),
		ProofText:    string(rec.ProofText),
		Metadata:     string(rec.Metadata),
		ProofIDHex:   hexutil.Encode(rec.ProofID),
		ProofTextHex: hexutil.Encode(rec.ProofText),
		MetadataHex:  hexutil.Encode(rec.Metadata),
		Timestamp:    rec.Timestamp,
	}
}

// byteCodec 决定请求中的字节字段（请求体与路径中的证明 ID）如何解码。
// ?encoding=hex 时按 0x 前缀的十六进制解码，否则按 UTF-8 原样取字节。
type byteCodec bool

func codecOf(r *http.Request) (byteCodec, error) {
	switch r.URL.Query().Get("encoding") {
	case "", "utf8":
		return false, nil
	case "hex":
		return true, nil
	default:
		return false, xerrors.New(xerrors.CodeInvalidArgument, "encoding 仅支持 utf8 或 hex")
	}
}

func (c byteCodec) decode(field, value string) ([]byte, error) {
	if !c {
		return []byte(value), nil
	}
	b, err := hexutil.Decode(value)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, field+" 不是合法的十六进制")
	}
	return b, nil
}

func (c byteCodec) optional(field string, s *string) (proofs.Optional[[]byte], error) {
	if s == nil {
		return proofs.None[[]byte](), nil
	}
	b, err := c.decode(field, *s)
	if err != nil {
		return proofs.Optional[[]byte]{}, err
	}
	return proofs.Some(b), nil
}

// proofIDParam 读取路径中的证明 ID 并按 encoding 解码。
func proofIDParam(r *http.Request) ([]byte, error) {
	codec, err := codecOf(r)
	if err != nil {
		return nil, err
	}
	raw, err := pathParam(r, "proofID")
	if err != nil {
		return nil, err
	}
	return codec.decode("proofID", raw)
}

func (s *Server) handleCertify(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	codec, err := codecOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req CertifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	call, err := certifyCall(codec, req)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.host.Certify(r.Context(), caller, call)
	if err != nil {
		writeErrorWithTx(w, err, txIDOf(rec))
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func certifyCall(codec byteCodec, req CertifyRequest) (host.CertifyRequest, error) {
	id, err := codec.decode("proof_id", req.ProofID)
	if err != nil {
		return host.CertifyRequest{}, err
	}
	text, err := codec.decode("proof_text", req.ProofText)
	if err != nil {
		return host.CertifyRequest{}, err
	}
	metadata, err := codec.optional("metadata", req.Metadata)
	if err != nil {
		return host.CertifyRequest{}, err
	}
	return host.CertifyRequest{ProofID: id, ProofText: text, Metadata: metadata}, nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	codec, err := codecOf(r)
	if err != nil {
		writeError(w, err)
		return
	}
	proofID, err := proofIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req UpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	text, err := codec.decode("proof_text", req.ProofText)
	if err != nil {
		writeError(w, err)
		return
	}
	metadata, err := codec.optional("metadata", req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.host.Update(r.Context(), caller, host.UpdateRequest{
		ProofID:   proofID,
		ProofText: text,
		Metadata:  metadata,
	})
	if err != nil {
		writeErrorWithTx(w, err, txIDOf(rec))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleProofOwner(w http.ResponseWriter, r *http.Request) {
	proofID, err := proofIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	owner, ok, err := s.host.Views().ProofOwner(r.Context(), proofID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, proofs.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": owner.Hex()})
}

func (s *Server) handleProofExists(w http.ResponseWriter, r *http.Request) {
	proofID, err := proofIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	exists, err := s.host.Views().ProofExists(r.Context(), proofID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	proofID, err := proofIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, ok, err := s.host.Views().Proof(r.Context(), owner, proofID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, proofs.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toProofResponse(owner, rec))
}

func (s *Server) handleUserProofs(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	opts, err := pageOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.host.Views().UserProofs(r.Context(), owner, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ProofResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toProofResponse(owner, rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"proofs": out})
}

func (s *Server) handleUserProofIDs(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	opts, err := pageOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ids, err := s.host.Views().UserProofIDs(r.Context(), owner, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]string, 0, len(ids))
	hexIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
		hexIDs = append(hexIDs, hexutil.Encode(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{"proof_ids": out, "proof_ids_hex": hexIDs})
}

func (s *Server) handleUserProofCount(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := s.host.Views().UserProofCount(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

// StatsResponse 是 GET /api/v1/stats 的响应体。
type StatsResponse struct {
	TotalProofs uint64        `json:"total_proofs"`
	Receipts    receipt.Stats `json:"receipts"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.host.Views().TotalProofs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.host.ReceiptStats(r.Context(), receipt.NewListOptions())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{TotalProofs: total, Receipts: stats})
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	opts, err := receiptOptions(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.host.Receipts(r.Context(), receipt.NewListOptions(opts...))
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*receipt.Receipt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": list})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.host.Receipt(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体过大")
		}
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

func pathParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw, nil
	}
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "路径参数 "+name+" 编码错误")
	}
	return value, nil
}

func ownerParam(r *http.Request) (proofs.Identity, error) {
	return proofs.ParseIdentity(chi.URLParam(r, "owner"))
}

func pageOptions(r *http.Request) ([]proofs.ListOption, error) {
	q := r.URL.Query()
	var opts []proofs.ListOption
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "offset 必须为非负整数")
		}
		opts = append(opts, proofs.WithOffset(n))
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "limit 必须为非负整数")
		}
		opts = append(opts, proofs.WithLimit(n))
	}
	return opts, nil
}

func receiptOptions(q url.Values) ([]receipt.ListOption, error) {
	var opts []receipt.ListOption
	for _, key := range []string{"limit", "offset"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, key+" 必须为整数")
		}
		if key == "limit" {
			opts = append(opts, receipt.WithLimit(n))
		} else {
			opts = append(opts, receipt.WithOffset(n))
		}
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []receipt.Status
		for _, st := range strings.Split(raw, ",") {
			statuses = append(statuses, receipt.Status(strings.TrimSpace(st)))
		}
		opts = append(opts, receipt.WithStatuses(statuses...))
	}
	if raw := q.Get("operation"); raw != "" {
		var ops []receipt.Operation
		for _, op := range strings.Split(raw, ",") {
			ops = append(ops, receipt.Operation(strings.TrimSpace(op)))
		}
		opts = append(opts, receipt.WithOperations(ops...))
	}
	if raw := q.Get("caller"); raw != "" {
		opts = append(opts, receipt.WithCaller(raw))
	}
	if raw := q.Get("proof_id"); raw != "" {
		opts = append(opts, receipt.WithProofID(raw))
	}
	for _, key := range []string{"since", "until"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, key+" 必须为 unix 秒")
		}
		if key == "since" {
			opts = append(opts, receipt.WithCreatedSince(time.Unix(ts, 0)))
		} else {
			opts = append(opts, receipt.WithCreatedUntil(time.Unix(ts, 0)))
		}
	}
	if q.Get("order") == "asc" {
		opts = append(opts, receipt.WithOrder(receipt.SortByCreatedAsc))
	}
	return opts, nil
}

func txIDOf(rec *receipt.Receipt) string {
	if rec == nil {
		return ""
	}
	return rec.TxID
}

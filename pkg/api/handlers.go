package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vulnforge/reportformats/pkg/assetstore"
	"github.com/vulnforge/reportformats/pkg/reportformat"
	"github.com/vulnforge/reportformats/pkg/signature"
)

// maxRenderBody caps the report document accepted by the render endpoint.
const maxRenderBody = 64 << 20

// Formats is the lifecycle surface served over HTTP.
type Formats interface {
	Create(ctx context.Context, in reportformat.CreateInput) (*reportformat.ReportFormat, error)
	Copy(ctx context.Context, sourceUUID, name string) (*reportformat.ReportFormat, error)
	Modify(ctx context.Context, formatUUID string, in reportformat.ModifyInput) error
	Delete(ctx context.Context, formatUUID string, ultimate bool) error
	Restore(ctx context.Context, trashUUID string) (*reportformat.ReportFormat, error)
	Verify(ctx context.Context, formatUUID string) (signature.Trust, error)
	EmptyTrash(ctx context.Context) (int, error)
	Get(ctx context.Context, formatUUID string) (*reportformat.ReportFormat, error)
	List(ctx context.Context, pageSize int, pageToken string) (*reportformat.ListResult, error)
	ListTrash(ctx context.Context) ([]*reportformat.ReportFormat, error)
	ListParams(ctx context.Context, formatUUID string) ([]reportformat.Param, error)
	FindByName(ctx context.Context, name string) (*reportformat.ReportFormat, error)
	Render(ctx context.Context, formatUUID, reportStart, workDir string) (string, error)
}

type fileRequest struct {
	Name    string `json:"name"`
	Content []byte `json:"content"` // base64 in JSON
}

type createRequest struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Summary     string                    `json:"summary"`
	Description string                    `json:"description"`
	Extension   string                    `json:"extension"`
	ContentType string                    `json:"contentType"`
	Signature   string                    `json:"signature"`
	Active      bool                      `json:"active"`
	Global      bool                      `json:"global"`
	Files       []fileRequest             `json:"files"`
	Params      []reportformat.ParamInput `json:"params"`
}

type paramValueRequest struct {
	Name  string  `json:"name"`
	Value *string `json:"value"`
}

type modifyRequest struct {
	Name       *string            `json:"name"`
	Summary    *string            `json:"summary"`
	Active     *bool              `json:"active"`
	Predefined *string            `json:"predefined"`
	Param      *paramValueRequest `json:"param"`
}

type cloneRequest struct {
	Name string `json:"name"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Size  int `json:"size"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// listFormatsHandler handles GET /report_formats.
// Query params: pageSize, pageToken, name
func listFormatsHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if name := q.Get("name"); name != "" {
			rf, err := formats.FindByName(r.Context(), name)
			if err != nil && reportformat.KindOf(err) != reportformat.KindNotFound {
				writeOpError(w, logger, "", err)
				return
			}
			items := []*reportformat.ReportFormat{}
			if rf != nil {
				items = append(items, rf)
			}
			writeJSON(w, http.StatusOK, reportformat.ListResult{Items: items, TotalSize: len(items)})
			return
		}

		pageSize := 0
		if ps := q.Get("pageSize"); ps != "" {
			v, err := strconv.Atoi(ps)
			if err != nil || v < 0 {
				writeError(w, http.StatusBadRequest, "invalid pageSize")
				return
			}
			pageSize = v
		}
		result, err := formats.List(r.Context(), pageSize, q.Get("pageToken"))
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// createFormatHandler handles POST /report_formats.
func createFormatHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in := reportformat.CreateInput{
			UUID:        req.ID,
			Name:        req.Name,
			Summary:     req.Summary,
			Description: req.Description,
			Extension:   req.Extension,
			ContentType: req.ContentType,
			Signature:   req.Signature,
			Params:      req.Params,
			Active:      req.Active,
			Global:      req.Global,
		}
		for _, f := range req.Files {
			in.Files = append(in.Files, assetstore.File{Name: f.Name, Content: f.Content})
		}

		rf, err := formats.Create(r.Context(), in)
		if err != nil {
			writeOpError(w, logger, reportformat.OpCreate, err)
			return
		}
		w.Header().Set("Location", r.URL.Path+"/"+rf.UUID)
		writeJSON(w, http.StatusCreated, rf)
	}
}

// getFormatHandler handles GET /report_formats/{id}.
func getFormatHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rf, err := formats.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		writeJSON(w, http.StatusOK, rf)
	}
}

// modifyFormatHandler handles PATCH /report_formats/{id}.
func modifyFormatHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req modifyRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in := reportformat.ModifyInput{
			Name:       req.Name,
			Summary:    req.Summary,
			Active:     req.Active,
			Predefined: req.Predefined,
		}
		if req.Param != nil {
			if req.Param.Name == "" {
				writeError(w, http.StatusBadRequest, "param.name is required")
				return
			}
			in.ParamName = req.Param.Name
			in.ParamValue = req.Param.Value
		}

		id := chi.URLParam(r, "id")
		if err := formats.Modify(r.Context(), id, in); err != nil {
			writeOpError(w, logger, reportformat.OpModify, err)
			return
		}
		rf, err := formats.Get(r.Context(), id)
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		writeJSON(w, http.StatusOK, rf)
	}
}

// cloneFormatHandler handles POST /report_formats/{id}/clone.
func cloneFormatHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cloneRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		rf, err := formats.Copy(r.Context(), chi.URLParam(r, "id"), req.Name)
		if err != nil {
			writeOpError(w, logger, reportformat.OpCopy, err)
			return
		}
		writeJSON(w, http.StatusCreated, rf)
	}
}

// deleteFormatHandler handles DELETE /report_formats/{id}?ultimate=true.
func deleteFormatHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ultimate := false
		if v := r.URL.Query().Get("ultimate"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid ultimate flag")
				return
			}
			ultimate = b
		}
		if err := formats.Delete(r.Context(), chi.URLParam(r, "id"), ultimate); err != nil {
			writeOpError(w, logger, reportformat.OpDelete, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// verifyFormatHandler handles POST /report_formats/{id}/verify.
func verifyFormatHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trust, err := formats.Verify(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeOpError(w, logger, reportformat.OpVerify, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"trust": trust.String()})
	}
}

// listParamsHandler handles GET /report_formats/{id}/params.
func listParamsHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := formats.ListParams(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		if params == nil {
			params = []reportformat.Param{}
		}
		writeJSON(w, http.StatusOK, listResponse[reportformat.Param]{Items: params, Size: len(params)})
	}
}

// renderFormatHandler handles POST /report_formats/{id}/render. The body is
// the opening part of the report document; the response is the generated
// output.
func renderFormatHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rf, err := formats.Get(r.Context(), id)
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}

		workDir, err := os.MkdirTemp("", "rfmgr-render-")
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				logger.Warn("failed to remove render directory", "dir", workDir, "error", err)
			}
		}()

		reportStart := filepath.Join(workDir, "report-start.xml")
		n, err := writeBody(reportStart, http.MaxBytesReader(w, r.Body, maxRenderBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read report document")
			return
		}
		if n == 0 {
			writeError(w, http.StatusBadRequest, "report document is required")
			return
		}

		out, err := formats.Render(r.Context(), id, reportStart, workDir)
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		f, err := os.Open(out)
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		defer f.Close()

		contentType := rf.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		if rf.Extension != "" {
			w.Header().Set("Content-Disposition",
				fmt.Sprintf("attachment; filename=%q", "report."+filepath.Base(rf.Extension)))
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, f); err != nil {
			logger.Warn("failed to stream rendered report", "uuid", id, "error", err)
		}
	}
}

func writeBody(path string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// listTrashHandler handles GET /trash.
func listTrashHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := formats.ListTrash(r.Context())
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse[*reportformat.ReportFormat]{Items: items, Size: len(items)})
	}
}

// restoreHandler handles POST /trash/{id}/restore.
func restoreHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rf, err := formats.Restore(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeOpError(w, logger, reportformat.OpRestore, err)
			return
		}
		writeJSON(w, http.StatusOK, rf)
	}
}

// deleteTrashedHandler handles DELETE /trash/{id}.
func deleteTrashedHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := formats.Delete(r.Context(), chi.URLParam(r, "id"), true); err != nil {
			writeOpError(w, logger, reportformat.OpDelete, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// emptyTrashHandler handles DELETE /trash.
func emptyTrashHandler(formats Formats, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := formats.EmptyTrash(r.Context())
		if err != nil {
			writeOpError(w, logger, "", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}

package processor

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	"thumbnailer/internal/pkg/errors"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/ports"
)

const defaultContentType = "application/octet-stream"

// OutputHandler uploads what the tool left in the workspace.
type OutputHandler struct{}

func NewOutputHandler() *OutputHandler {
	return &OutputHandler{}
}

// PublishResult lists uploaded object names and per-file failures, in
// directory order.
type PublishResult struct {
	Uploaded []string
	Errors   []*errors.Error
}

// Publish uploads every non-directory entry of ws to dst, one file at a
// time. A failed upload is recorded and the remaining files still go out.
// Each local file is removed right after its upload attempt.
func (oh *OutputHandler) Publish(ctx context.Context, ws *Workspace, dst *ResolvedLocation, log *logger.Logger) *PublishResult {
	res := &PublishResult{}

	entries, err := os.ReadDir(ws.Path)
	if err != nil {
		res.Errors = append(res.Errors, errors.WrapWithCode(err, errors.CodeUploadFailure, "publish.list", "could not list workspace"))
		return res
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		localPath := filepath.Join(ws.Path, name)

		log.Info("uploading output", "file", name)
		key, err := oh.upload(ctx, localPath, name, dst)
		if err != nil {
			e := errors.WrapWithCode(err, errors.CodeUploadFailure, "publish.upload", "upload of "+name+" failed").
				WithField("file", name)
			log.Warn("output upload failed", "file", name, "error", err.Error())
			res.Errors = append(res.Errors, e)
		} else {
			log.Info("output uploaded", "file", name, "object_key", key)
			res.Uploaded = append(res.Uploaded, name)
		}

		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			log.Warn("local output not removed", "file", name, "code", string(errors.CodeCleanupFailure), "error", err.Error())
		}
	}

	return res
}

func (oh *OutputHandler) upload(ctx context.Context, localPath, name string, dst *ResolvedLocation) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = defaultContentType
	}

	out, err := dst.Provider.PutObject(ctx, ports.PutObjectInput{
		Container:   dst.URL,
		ObjectKey:   name,
		ContentType: contentType,
		Reader:      f,
		Size:        st.Size(),
	})
	if err != nil {
		return "", err
	}
	return out.ObjectKey, nil
}

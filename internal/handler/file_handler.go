package handler

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	appErrors "github.com/edupoint/sims-api/pkg/errors"
	"github.com/edupoint/sims-api/pkg/response"
	"github.com/edupoint/sims-api/pkg/storage"
)

// FileHandler serves stored images through short-lived signed tokens so the
// download endpoint itself needs no bearer token.
type FileHandler struct {
	store  *storage.ImageStore
	signer *storage.SignedURLSigner
}

// NewFileHandler constructs a file handler.
func NewFileHandler(store *storage.ImageStore, signer *storage.SignedURLSigner) *FileHandler {
	return &FileHandler{store: store, signer: signer}
}

// SignURL godoc
// @Summary Issue a signed download token for a stored file
// @Tags Files
// @Produce json
// @Param name path string true "Stored file name"
// @Success 200 {object} response.Envelope
// @Router /files/{name}/url [get]
func (h *FileHandler) SignURL(c *gin.Context) {
	name := c.Param("name")
	if _, err := os.Stat(h.store.Path(name)); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	token, expiresAt, err := h.signer.Generate(name)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign url"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        "/api/v1/files/" + name + "?token=" + token,
		"token":      token,
		"expires_at": expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a stored file
// @Tags Files
// @Produce octet-stream
// @Param name path string true "Stored file name"
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /files/{name} [get]
func (h *FileHandler) Download(c *gin.Context) {
	name := c.Param("name")
	signedName, err := h.signer.Parse(c.Query("token"))
	if err != nil || signedName != name {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}
	path := h.store.Path(name)
	if _, err := os.Stat(path); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	c.File(path)
}

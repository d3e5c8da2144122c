package handler

import (
	"github.com/gofiber/fiber/v2"

	"collab-backend/internal/document"
	"collab-backend/internal/presence"
)

// DocsHandler is the REST face of the document directory, for clients that
// browse documents without holding an editor connection.
type DocsHandler struct {
	service  *document.Service
	presence *presence.Manager // may be nil
}

func NewDocsHandler(service *document.Service, presence *presence.Manager) *DocsHandler {
	return &DocsHandler{service: service, presence: presence}
}

// GetDocuments lists every document, most recently updated first.
func (h *DocsHandler) GetDocuments(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"documents": h.service.ListDocs(),
	})
}

type createDocumentRequest struct {
	Title string `json:"title"`
}

// CreateDocument allocates a new empty document.
func (h *DocsHandler) CreateDocument(c *fiber.Ctx) error {
	var req createDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	meta, err := h.service.Create(req.Title)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create document"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"document": meta,
	})
}

// DeleteDocument removes a document. Live viewers are ejected with a
// DOC_DELETED notice by the service.
func (h *DocsHandler) DeleteDocument(c *fiber.Ctx) error {
	docID := c.Params("docId")

	if !h.service.Delete(docID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "document not found"})
	}
	if h.presence != nil {
		h.presence.ClearViewers(docID)
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetViewers reports who is currently viewing a document. Without a presence
// backend the list is always empty.
func (h *DocsHandler) GetViewers(c *fiber.Ctx) error {
	docID := c.Params("docId")

	viewers := []string{}
	if h.presence != nil {
		if v, err := h.presence.Viewers(docID); err == nil {
			viewers = v
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"viewers": viewers,
	})
}

package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"custodia/internal/escrow"
	"custodia/internal/services"
)

var cloudinaryService *services.CloudinaryService

func InitCloudinaryService() error {
	var err error
	cloudinaryService, err = services.NewCloudinaryService()
	if err != nil {
		return fmt.Errorf("failed to initialize cloudinary service: %w", err)
	}
	return nil
}

var evidenceFolders = map[string]string{
	"item":       services.FolderItemImages,
	"shipping":   services.FolderShippingEvidence,
	"inspection": services.FolderInspectionPhotos,
	"dispute":    services.FolderDisputeEvidence,
	"document":   services.FolderDocuments,
}

// UploadEvidence uploads evidence files for a transaction. The kind query
// parameter picks the folder; documents are also attached to the
// transaction's evidence block.
func UploadEvidence(c *fiber.Ctx) error {
	if cloudinaryService == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "File uploads are not available",
		})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to parse form",
		})
	}

	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No files provided",
		})
	}
	if len(files) > 5 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Too many files. Maximum is 5 files",
		})
	}
	for _, file := range files {
		if file.Size > 10*1024*1024 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("%s is too large. Maximum size is 10MB", file.Filename),
			})
		}
	}

	kind := c.Query("kind", "document")
	folder, ok := evidenceFolders[kind]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kind must be one of item, shipping, inspection, dispute, document",
		})
	}

	// Only parties and moderators may attach files to a transaction.
	actor := actorFromCtx(c)
	if _, err := escrowService.Get(c.Context(), actor, c.Params("id")); err != nil {
		return respondDomainError(c, err)
	}

	results, err := cloudinaryService.UploadMultipleFiles(c.Context(), files, folder)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload files",
		})
	}

	if kind == "document" {
		docType := escrow.DocumentType(c.Query("document_type", string(escrow.DocumentOther)))
		for _, result := range results {
			_, err := escrowService.AttachDocument(c.Context(), actor, c.Params("id"),
				uuid.NewString(), docType, result.Filename, result.SecureURL)
			if err != nil {
				return respondDomainError(c, err)
			}
		}
	}

	uploadedFiles := make([]fiber.Map, 0, len(results))
	for _, result := range results {
		uploadedFiles = append(uploadedFiles, fiber.Map{
			"filename":      result.Filename,
			"url":           result.SecureURL,
			"public_id":     result.PublicID,
			"format":        result.Format,
			"resource_type": result.ResourceType,
			"size_bytes":    result.Bytes,
		})
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("%d file(s) uploaded successfully", len(results)),
		"files":   uploadedFiles,
	})
}

// DeleteEvidence removes an uploaded asset by its public id.
func DeleteEvidence(c *fiber.Ctx) error {
	if cloudinaryService == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "File uploads are not available",
		})
	}

	publicID := c.Query("public_id")
	if publicID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "public_id is required",
		})
	}

	if err := cloudinaryService.DeleteFile(c.Context(), publicID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete file",
		})
	}

	return c.JSON(fiber.Map{
		"message": "File deleted successfully",
	})
}

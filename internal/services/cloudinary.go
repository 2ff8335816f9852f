package services

import (
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Upload folders, one per evidence kind.
const (
	FolderItemImages       = "custodia/items"
	FolderShippingEvidence = "custodia/shipping"
	FolderInspectionPhotos = "custodia/inspection"
	FolderDisputeEvidence  = "custodia/disputes"
	FolderDocuments        = "custodia/documents"
)

type CloudinaryService struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryService() (*CloudinaryService, error) {
	cloudName := os.Getenv("CLOUDINARY_CLOUD_NAME")
	apiKey := os.Getenv("CLOUDINARY_API_KEY")
	apiSecret := os.Getenv("CLOUDINARY_API_SECRET")

	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("cloudinary credentials not set in environment variables")
	}

	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &CloudinaryService{cld: cld}, nil
}

type UploadResult struct {
	// Filename is the client's original name for the file. Batch uploads
	// skip failed files, so results cannot be paired back to the input by
	// index.
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	SecureURL    string `json:"secure_url"`
	PublicID     string `json:"public_id"`
	Format       string `json:"format"`
	ResourceType string `json:"resource_type"`
	Bytes        int    `json:"bytes"`
}

// UploadFile uploads a single evidence file into the given folder.
func (s *CloudinaryService) UploadFile(ctx context.Context, file *multipart.FileHeader, folder string) (*UploadResult, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	ext := filepath.Ext(file.Filename)
	fileName := fmt.Sprintf("%d_%s", time.Now().Unix(), file.Filename)

	uploadParams := uploader.UploadParams{
		Folder:         folder,
		PublicID:       fileName[:len(fileName)-len(ext)],
		ResourceType:   "auto",
		AllowedFormats: []string{"jpg", "jpeg", "png", "webp", "pdf"},
	}

	result, err := s.cld.Upload.Upload(ctx, src, uploadParams)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to cloudinary: %w", err)
	}

	return &UploadResult{
		Filename:     file.Filename,
		URL:          result.URL,
		SecureURL:    result.SecureURL,
		PublicID:     result.PublicID,
		Format:       result.Format,
		ResourceType: result.ResourceType,
		Bytes:        result.Bytes,
	}, nil
}

// UploadMultipleFiles uploads a batch, skipping individual failures.
func (s *CloudinaryService) UploadMultipleFiles(ctx context.Context, files []*multipart.FileHeader, folder string) ([]*UploadResult, error) {
	return collectUploads(files, func(file *multipart.FileHeader) (*UploadResult, error) {
		return s.UploadFile(ctx, file, folder)
	})
}

// collectUploads runs upload on each file and keeps the successes. Failures
// are logged and skipped, so every result must identify its source file
// through Filename; callers cannot pair results to the input by index.
func collectUploads(files []*multipart.FileHeader, upload func(*multipart.FileHeader) (*UploadResult, error)) ([]*UploadResult, error) {
	var results []*UploadResult

	for _, file := range files {
		result, err := upload(file)
		if err != nil {
			log.Printf("upload %s failed: %v", file.Filename, err)
			continue
		}
		results = append(results, result)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("all file uploads failed")
	}

	return results, nil
}

// DeleteFile removes an uploaded asset.
func (s *CloudinaryService) DeleteFile(ctx context.Context, publicID string) error {
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: publicID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from cloudinary: %w", err)
	}
	return nil
}

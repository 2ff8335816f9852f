package services

import (
	"errors"
	"mime/multipart"
	"testing"
)

func TestCollectUploadsSkipsFailuresAndKeepsFilenames(t *testing.T) {
	files := []*multipart.FileHeader{
		{Filename: "recibo.pdf"},
		{Filename: "factura.pdf"},
		{Filename: "garantia.pdf"},
	}

	results, err := collectUploads(files, func(f *multipart.FileHeader) (*UploadResult, error) {
		if f.Filename == "factura.pdf" {
			return nil, errors.New("upstream rejected")
		}
		return &UploadResult{Filename: f.Filename, SecureURL: "https://cdn.example.com/" + f.Filename}, nil
	})
	if err != nil {
		t.Fatalf("collectUploads: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	// After the middle file failed, the survivors must still carry their own
	// names rather than shifting onto the failed file's position.
	if results[0].Filename != "recibo.pdf" || results[1].Filename != "garantia.pdf" {
		t.Errorf("filenames = %q, %q", results[0].Filename, results[1].Filename)
	}
}

func TestCollectUploadsAllFailed(t *testing.T) {
	files := []*multipart.FileHeader{{Filename: "recibo.pdf"}}
	_, err := collectUploads(files, func(*multipart.FileHeader) (*UploadResult, error) {
		return nil, errors.New("upstream rejected")
	})
	if err == nil {
		t.Fatal("want error when every upload fails")
	}
}

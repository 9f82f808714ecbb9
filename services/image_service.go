package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/kendall-kelly/delivery-tracking-api/utils"
)

// ImageService handles package photos: upload, presigned retrieval and deletion
type ImageService interface {
	// UploadDeliveryImage validates and stores a photo for a delivery, returning its storage key
	UploadDeliveryImage(ctx context.Context, deliveryID uint, fileHeader *multipart.FileHeader) (string, error)

	// GetImageURL generates a URL for accessing a stored photo
	GetImageURL(ctx context.Context, imageKey string) (string, error)

	// DeleteImage removes a photo from storage
	DeleteImage(ctx context.Context, imageKey string) error
}

// S3ImageService implements ImageService on an S3Interface
type S3ImageService struct {
	storage S3Interface
	now     func() time.Time
}

var imageServiceInstance ImageService

// InitImageService initializes the image service with the given storage backend
func InitImageService(storage S3Interface) ImageService {
	imageServiceInstance = &S3ImageService{storage: storage, now: time.Now}
	return imageServiceInstance
}

// GetImageService returns the initialized image service instance, nil when storage is not configured
func GetImageService() ImageService {
	return imageServiceInstance
}

// SetImageService sets the image service instance (primarily for testing)
func SetImageService(service ImageService) {
	imageServiceInstance = service
}

// UploadDeliveryImage stores the file under deliveries/{id}/{unix}_{name}
func (s *S3ImageService) UploadDeliveryImage(ctx context.Context, deliveryID uint, fileHeader *multipart.FileHeader) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	key := fmt.Sprintf("deliveries/%d/%d_%s", deliveryID, s.now().Unix(), filepath.Base(fileHeader.Filename))
	if err := s.storage.UploadFile(ctx, key, fileHeader); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return key, nil
}

func (s *S3ImageService) GetImageURL(ctx context.Context, imageKey string) (string, error) {
	if imageKey == "" {
		return "", nil
	}

	url, err := s.storage.GetPresignedURL(ctx, imageKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate image URL: %w", err)
	}
	return url, nil
}

func (s *S3ImageService) DeleteImage(ctx context.Context, imageKey string) error {
	if imageKey == "" {
		return nil
	}

	if err := s.storage.DeleteFile(ctx, imageKey); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

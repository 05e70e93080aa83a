package service

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/GTDGit/registry_api/internal/config"
)

// FaceDetector is the subset of the Rekognition client used for ID checks.
type FaceDetector interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// minFaceConfidence is the Rekognition confidence a face needs to be counted.
const minFaceConfidence = 90.0

// FaceCheckService counts faces on uploaded ID images using AWS Rekognition.
type FaceCheckService struct {
	client FaceDetector
}

// NewFaceCheckService creates a FaceCheckService from AWS configuration.
func NewFaceCheckService(ctx context.Context, cfg *config.AWSConfig) (*FaceCheckService, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.RekognitionRegion)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &FaceCheckService{client: rekognition.NewFromConfig(awsCfg)}, nil
}

// NewFaceCheckServiceWithClient wraps an existing client.
func NewFaceCheckServiceWithClient(client FaceDetector) *FaceCheckService {
	return &FaceCheckService{client: client}
}

// CountFaces returns the number of faces detected with high confidence.
func (s *FaceCheckService) CountFaces(ctx context.Context, image []byte) (int, error) {
	out, err := s.client.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return 0, fmt.Errorf("detect faces: %w", err)
	}
	n := 0
	for _, f := range out.FaceDetails {
		if aws.ToFloat32(f.Confidence) >= minFaceConfidence {
			n++
		}
	}
	return n, nil
}

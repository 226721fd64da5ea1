package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyoteltracing "github.com/aws/smithy-go/tracing/smithy-otel-tracing"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"otelsamples/pkg/logger"
)

// ErrNoCredentials 与 boto3 的 NoCredentialsError 对应
var ErrNoCredentials = errors.New("No AWS credentials found.")

// ErrAWSDisabled AWS_DEMO_ENABLED=false 时返回
var ErrAWSDisabled = errors.New("AWS demo is disabled")

type BucketLister interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

type TableLister interface {
	ListTables(ctx context.Context, in *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
}

// AWSService S3 与 DynamoDB 的列举示例，SDK 调用通过 smithy 适配器生成 span
type AWSService struct {
	enabled bool
	creds   aws.CredentialsProvider
	s3      BucketLister
	ddb     TableLister
}

// NewAWSService 加载默认凭证链；enabled=false 时所有调用返回 ErrAWSDisabled
func NewAWSService(ctx context.Context, region string, enabled bool) *AWSService {
	if !enabled {
		return &AWSService{}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		logger.Logger.Warn("Failed to load AWS config", zap.Error(err))
		return &AWSService{}
	}

	tp := smithyoteltracing.Adapt(otel.GetTracerProvider())
	return &AWSService{
		enabled: true,
		creds:   cfg.Credentials,
		s3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.TracerProvider = tp
		}),
		ddb: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.TracerProvider = tp
		}),
	}
}

// NewAWSServiceWithClients 供测试注入客户端
func NewAWSServiceWithClients(creds aws.CredentialsProvider, s3c BucketLister, ddb TableLister) *AWSService {
	return &AWSService{enabled: true, creds: creds, s3: s3c, ddb: ddb}
}

func (a *AWSService) ready(ctx context.Context) error {
	if !a.enabled {
		return ErrAWSDisabled
	}
	if a.creds == nil {
		return ErrNoCredentials
	}

	// IMDS 探测可能很慢
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := a.creds.Retrieve(ctx); err != nil {
		return ErrNoCredentials
	}
	return nil
}

// ListBuckets 返回桶名
func (a *AWSService) ListBuckets(ctx context.Context) ([]string, error) {
	if err := a.ready(ctx); err != nil {
		return nil, err
	}

	out, err := a.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list s3 buckets: %w", err)
	}

	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return names, nil
}

// ListTables 返回 DynamoDB 表名
func (a *AWSService) ListTables(ctx context.Context) ([]string, error) {
	if err := a.ready(ctx); err != nil {
		return nil, err
	}

	out, err := a.ddb.ListTables(ctx, &dynamodb.ListTablesInput{})
	if err != nil {
		return nil, fmt.Errorf("list dynamodb tables: %w", err)
	}
	return out.TableNames, nil
}

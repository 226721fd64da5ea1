package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct{ names []string }

func (f fakeS3) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	out := &s3.ListBucketsOutput{}
	for _, n := range f.names {
		out.Buckets = append(out.Buckets, s3types.Bucket{Name: aws.String(n)})
	}
	return out, nil
}

type fakeDynamo struct{ err error }

func (f fakeDynamo) ListTables(ctx context.Context, in *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.ListTablesOutput{TableNames: []string{"orders"}}, nil
}

var staticCreds = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
	return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}, nil
})

func TestAWSServiceListsResources(t *testing.T) {
	svc := NewAWSServiceWithClients(staticCreds, fakeS3{names: []string{"a", "b"}}, fakeDynamo{})

	buckets, err := svc.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, buckets)

	tables, err := svc.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, tables)
}

func TestAWSServiceWithoutCredentials(t *testing.T) {
	noCreds := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no providers in chain")
	})
	svc := NewAWSServiceWithClients(noCreds, fakeS3{}, fakeDynamo{})

	_, err := svc.ListBuckets(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, "No AWS credentials found.", err.Error())
}

func TestAWSServiceDisabled(t *testing.T) {
	svc := NewAWSService(context.Background(), "us-east-1", false)
	_, err := svc.ListTables(context.Background())
	assert.ErrorIs(t, err, ErrAWSDisabled)
}

func TestAWSServiceWrapsClientErrors(t *testing.T) {
	svc := NewAWSServiceWithClients(staticCreds, fakeS3{}, fakeDynamo{err: errors.New("throttled")})
	_, err := svc.ListTables(context.Background())
	assert.ErrorContains(t, err, "throttled")
}

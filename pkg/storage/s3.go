/*
Copyright 2024 The Kubeflow authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package storage uploads run artifacts (the scenario log and the output
// files produced along the way) to an S3 bucket. Credentials come from the
// standard AWS environment or shared config.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"
)

// S3Uploader copies local files into one bucket folder.
type S3Uploader struct {
	client *s3manager.Uploader
	bucket string
	folder string
	logger *zap.SugaredLogger
}

// NewS3Uploader builds an uploader for s3://bucket/folder. Region may be
// empty when the environment provides one.
func NewS3Uploader(bucket, folder, region string, logger *zap.SugaredLogger) (*S3Uploader, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}
	return &S3Uploader{
		client: s3manager.NewUploader(sess),
		bucket: bucket,
		folder: folder,
		logger: logger,
	}, nil
}

// UploadFiles uploads every file and returns the remote URLs. Missing files
// abort the upload; the caller decides what is optional before calling.
func (u *S3Uploader) UploadFiles(ctx context.Context, files []string) ([]string, error) {
	var uploaded []string
	for _, file := range files {
		url, err := u.upload(ctx, file)
		if err != nil {
			return nil, err
		}
		uploaded = append(uploaded, url)
	}
	return uploaded, nil
}

func (u *S3Uploader) upload(ctx context.Context, localFile string) (string, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %v", localFile, err)
	}
	defer f.Close()

	key := ObjectKey(u.folder, localFile)
	u.logger.Infow("Uploading artifact", "file", localFile, "bucket", u.bucket, "key", key)
	_, err = u.client.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy file %s to S3: %v", localFile, err)
	}
	return RemoteURL(u.bucket, key), nil
}

// ObjectKey derives the bucket key for a local file within the folder.
func ObjectKey(folder, localFile string) string {
	return path.Join(folder, filepath.Base(localFile))
}

// RemoteURL renders the canonical s3:// URL of an uploaded object.
func RemoteURL(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

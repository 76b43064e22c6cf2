// Package s3 provides the S3-backed blob store and a DynamoDB-backed
// completion ledger for atomically publishing archived segments.
package s3

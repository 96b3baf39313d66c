package storage

import "testing"

func TestFileURLPublicBase(t *testing.T) {
	c := &Client{cfg: S3Config{Region: "eu-west-1", Bucket: "media", PublicBase: "https://cdn.example.com/"}}
	if got := c.FileURL("uploads/a.pdf"); got != "https://cdn.example.com/uploads/a.pdf" {
		t.Fatalf("FileURL = %q", got)
	}
}

func TestFileURLEndpointFallback(t *testing.T) {
	c := &Client{cfg: S3Config{Region: "eu-west-1", Bucket: "media", Endpoint: "http://localhost:9000"}}
	if got := c.FileURL("uploads/a.pdf"); got != "http://localhost:9000/media/uploads/a.pdf" {
		t.Fatalf("FileURL = %q", got)
	}
}

func TestFileURLBucketFallback(t *testing.T) {
	c := &Client{cfg: S3Config{Region: "eu-west-1", Bucket: "media"}}
	want := "https://media.s3.eu-west-1.amazonaws.com/uploads/a.pdf"
	if got := c.FileURL("uploads/a.pdf"); got != want {
		t.Fatalf("FileURL = %q, want %q", got, want)
	}
	if got := c.FileURL(""); got != "" {
		t.Fatalf("FileURL on empty key = %q, want empty", got)
	}
}

func TestValidateContentType(t *testing.T) {
	c := &Client{}
	if err := c.ValidateContentType("application/pdf"); err != nil {
		t.Fatalf("valid type rejected: %v", err)
	}
	for _, bad := range []string{"", "pdf", "application/"} {
		if err := c.ValidateContentType(bad); err == nil {
			t.Fatalf("content type %q accepted", bad)
		}
	}
}

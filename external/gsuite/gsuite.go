// Package gsuite mirrors transcripts into Google Sheets and Google Docs.
package gsuite

import (
	"fmt"

	"cloud.google.com/go/auth/credentials"
	"google.golang.org/api/option"
)

const (
	sheetsScope = "https://www.googleapis.com/auth/spreadsheets"
	docsScope   = "https://www.googleapis.com/auth/documents"
)

func credentialOptions(credentialsJSON string, scopes ...string) ([]option.ClientOption, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(credentialsJSON),
		Scopes:          scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	return []option.ClientOption{option.WithAuthCredentials(creds)}, nil
}

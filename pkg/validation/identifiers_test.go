// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateWorkspace(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		wantErr bool
	}{
		{"simple", "production", false},
		{"hyphen", "staging-eu", false},
		{"underscore", "dev_1", false},
		{"leading underscore", "_scratch", false},

		{"empty", "", true},
		{"leading hyphen", "-prod", true},
		{"dot", "prod.eu", true},
		{"slash", "prod/eu", true},
		{"flag injection", "--help", true},
		{"space", "prod eu", true},
		{"newline", "prod\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorkspace(tt.env)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWorkspace(%q) error = %v, wantErr %v", tt.env, err, tt.wantErr)
			}
		})
	}
}

func TestValidateImageTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		wantErr bool
	}{
		{"semver", "1.2.0", false},
		{"v prefix", "v1.2.0", false},
		{"latest", "latest", false},
		{"short hash", "3f9a0c1", false},
		{"underscore", "release_candidate", false},
		{"max length", strings.Repeat("a", 128), false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"branch with slash", "feature/login", true},
		{"leading dot", ".hidden", true},
		{"leading hyphen", "-rf", true},
		{"colon", "app:1.2.0", true},
		{"space", "1.2 .0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageTag(tt.tag)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateImageTag(%q) error = %v, wantErr %v", tt.tag, err, tt.wantErr)
			}
		})
	}
}

func TestValidateParameterName(t *testing.T) {
	tests := []struct {
		name    string
		param   string
		wantErr bool
	}{
		{"hierarchical", "/app/production/db_password", false},
		{"flat", "db-password", false},
		{"dots", "/app/v1.2/key", false},

		{"empty", "", true},
		{"reserved aws", "/aws/reference/secret", true},
		{"reserved ssm", "ssm-key", true},
		{"reserved case-insensitive", "/AWS/key", true},
		{"space", "/app/db password", true},
		{"quote", `/app/"key"`, true},
		{"too long", "/" + strings.Repeat("a", MaxParameterNameLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameterName(tt.param)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateParameterName(%q) error = %v, wantErr %v", tt.param, err, tt.wantErr)
			}
		})
	}
}

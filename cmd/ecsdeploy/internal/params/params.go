// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package params reads values from the SSM Parameter Store.
package params

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"

	"github.com/AleutianAI/ecsdeploy/pkg/logging"
	"github.com/AleutianAI/ecsdeploy/pkg/validation"
)

// ErrParameterNotFound is returned for names SSM does not know.
var ErrParameterNotFound = errors.New("parameter not found")

// Parameter is one Parameter Store value.
type Parameter struct {
	Name    string
	Type    string // String, StringList or SecureString
	Value   string
	Version int64
}

// Reader reads parameters.
type Reader struct {
	api    ssmiface.SSMAPI
	logger *logging.Logger
}

// NewReader creates a Reader. api is usually ssm.New(sess).
func NewReader(api ssmiface.SSMAPI, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reader{api: api, logger: logger}
}

// Get returns the named parameter.
//
// # Description
//
// SecureString values come back encrypted unless decrypt is set. The value
// is never logged.
//
// # Outputs
//
//   - *Parameter: The parameter
//   - error: ErrParameterNotFound, or the wrapped SSM error
func (r *Reader) Get(ctx context.Context, name string, decrypt bool) (*Parameter, error) {
	if err := validation.ValidateParameterName(name); err != nil {
		return nil, err
	}
	out, err := r.api.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == ssm.ErrCodeParameterNotFound {
			return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, name)
		}
		return nil, fmt.Errorf("get parameter %s: %w", name, err)
	}
	if out.Parameter == nil {
		return nil, fmt.Errorf("%w: %s", ErrParameterNotFound, name)
	}

	p := &Parameter{
		Name:    aws.StringValue(out.Parameter.Name),
		Type:    aws.StringValue(out.Parameter.Type),
		Value:   aws.StringValue(out.Parameter.Value),
		Version: aws.Int64Value(out.Parameter.Version),
	}
	r.logger.Debug("read parameter", "name", p.Name, "type", p.Type, "version", p.Version)
	return p, nil
}

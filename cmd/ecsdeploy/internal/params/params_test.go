// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package params

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

type fakeSSM struct {
	ssmiface.SSMAPI
	in  *ssm.GetParameterInput
	out *ssm.GetParameterOutput
	err error
}

func (f *fakeSSM) GetParameterWithContext(ctx aws.Context, in *ssm.GetParameterInput, opts ...request.Option) (*ssm.GetParameterOutput, error) {
	f.in = in
	return f.out, f.err
}

func TestReader_Get(t *testing.T) {
	api := &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &ssm.Parameter{
		Name:    aws.String("/prod/db/password"),
		Type:    aws.String(ssm.ParameterTypeSecureString),
		Value:   aws.String("hunter2"),
		Version: aws.Int64(3),
	}}}
	exporter := logging.NewBufferedExporter()
	r := NewReader(api, logging.New(logging.Config{Quiet: true, Exporter: exporter}))

	p, err := r.Get(context.Background(), "/prod/db/password", true)
	require.NoError(t, err)

	assert.Equal(t, "/prod/db/password", aws.StringValue(api.in.Name))
	assert.True(t, aws.BoolValue(api.in.WithDecryption))
	assert.Equal(t, "hunter2", p.Value)
	assert.Equal(t, int64(3), p.Version)

	for _, e := range exporter.Entries() {
		for _, v := range e.Attrs {
			assert.NotEqual(t, "hunter2", v, "parameter values must not be logged")
		}
	}
}

func TestReader_Get_NoDecrypt(t *testing.T) {
	api := &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &ssm.Parameter{Value: aws.String("v")}}}
	_, err := NewReader(api, nil).Get(context.Background(), "name", false)
	require.NoError(t, err)
	assert.False(t, aws.BoolValue(api.in.WithDecryption))
}

func TestReader_Get_NotFound(t *testing.T) {
	api := &fakeSSM{err: awserr.New(ssm.ErrCodeParameterNotFound, "", nil)}
	_, err := NewReader(api, nil).Get(context.Background(), "/missing", false)
	assert.ErrorIs(t, err, ErrParameterNotFound)
	assert.Contains(t, err.Error(), "/missing")

	_, err = NewReader(&fakeSSM{out: &ssm.GetParameterOutput{}}, nil).Get(context.Background(), "/empty", false)
	assert.ErrorIs(t, err, ErrParameterNotFound)
}

func TestReader_Get_OtherError(t *testing.T) {
	api := &fakeSSM{err: errors.New("AccessDeniedException")}
	_, err := NewReader(api, nil).Get(context.Background(), "/x", false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrParameterNotFound)
}

func TestReader_Get_RejectsBadNames(t *testing.T) {
	api := &fakeSSM{}
	for _, name := range []string{"", "/aws/reference/x", "/app/db password"} {
		_, err := NewReader(api, nil).Get(context.Background(), name, false)
		assert.Error(t, err, "name %q", name)
	}
	assert.Nil(t, api.in, "invalid names never reach SSM")
}

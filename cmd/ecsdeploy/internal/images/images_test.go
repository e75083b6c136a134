// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package images

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/ecr/ecriface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/compose"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/process"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/util"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

// =============================================================================
// Test Helpers
// =============================================================================

const (
	testApp     = "123456789012.dkr.ecr.us-east-1.amazonaws.com/app"
	testSidecar = "123456789012.dkr.ecr.us-east-1.amazonaws.com/nginx"
)

// eventLog records checkouts and commands in the order they happen.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeCheckouter mimics gitref.Guard: check out, run, always restore.
type fakeCheckouter struct {
	log *eventLog
	err error
}

func (f *fakeCheckouter) WithCheckout(ctx context.Context, target string, body func(ctx context.Context) error) error {
	if f.err != nil {
		return f.err
	}
	f.log.add("checkout " + target)
	err := body(ctx)
	f.log.add("restore")
	return err
}

func loggingManager(log *eventLog, fail func(line string) error) *process.MockManager {
	return &process.MockManager{
		RunStreamingFunc: func(ctx context.Context, dir string, env []string, out io.Writer, name string, args ...string) error {
			line := util.FormatCommand(name, args...)
			log.add(line)
			_, _ = io.WriteString(out, "step output for "+line+"\n")
			if fail != nil {
				return fail(line)
			}
			return nil
		},
	}
}

func testDockerConfig() DockerConfig {
	return DockerConfig{
		App:     ImageSource{Repository: testApp, Context: "build/app/src"},
		Sidecar: ImageSource{Repository: testSidecar, Context: "build/nginx"},
	}
}

type fakeECR struct {
	ecriface.ECRAPI
	out   *ecr.GetAuthorizationTokenOutput
	err   error
	calls int
}

func (f *fakeECR) GetAuthorizationTokenWithContext(ctx aws.Context, in *ecr.GetAuthorizationTokenInput, opts ...request.Option) (*ecr.GetAuthorizationTokenOutput, error) {
	f.calls++
	return f.out, f.err
}

func tokenOutput(token, endpoint string) *ecr.GetAuthorizationTokenOutput {
	return &ecr.GetAuthorizationTokenOutput{
		AuthorizationData: []*ecr.AuthorizationData{{
			AuthorizationToken: aws.String(token),
			ProxyEndpoint:      aws.String(endpoint),
		}},
	}
}

type countingAuth struct {
	calls int
	err   error
}

func (a *countingAuth) Login(ctx context.Context) error {
	a.calls++
	return a.err
}

// =============================================================================
// ImageSpec Tests
// =============================================================================

func TestNewImageSpec_DefaultsTag(t *testing.T) {
	assert.Equal(t, "app:latest", NewImageSpec("app", "").String())
	assert.Equal(t, "app:1.2.0", NewImageSpec("app", "1.2.0").String())
}

func TestImageSpec_RegistryHost(t *testing.T) {
	tests := []struct {
		repo string
		want string
	}{
		{testApp, "123456789012.dkr.ecr.us-east-1.amazonaws.com"},
		{"localhost/app", "localhost"},
		{"registry:5000/app", "registry:5000"},
		{"library/nginx", ""},
		{"nginx", ""},
	}
	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			assert.Equal(t, tt.want, ImageSpec{Repository: tt.repo}.RegistryHost())
		})
	}
}

func TestPushError_Message(t *testing.T) {
	err := &PushError{
		Pushed: []ImageSpec{NewImageSpec("app", "1")},
		Failed: NewImageSpec("nginx", "1"),
		Err:    errors.New("denied"),
	}
	assert.Equal(t, "push nginx:1: denied (already pushed: app:1)", err.Error())

	bare := &PushError{Failed: NewImageSpec("app", "1"), Err: errors.New("denied")}
	assert.Equal(t, "push app:1: denied", bare.Error())
}

// =============================================================================
// DockerBuilder Tests
// =============================================================================

func TestDockerBuilder_TaggedBuildOrder(t *testing.T) {
	log := &eventLog{}
	proc := loggingManager(log, nil)
	b := NewDockerBuilder(testDockerConfig(), proc, &fakeCheckouter{log: log}, nil, nil)

	built, err := b.Build(context.Background(), "1.2.0")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"checkout 1.2.0",
		"docker build -t " + testApp + ":1.2.0 build/app/src",
		"restore",
		"docker build -t " + testSidecar + ":1.2.0 --build-arg APP_IMAGE=" + testApp + ":1.2.0 build/nginx",
	}, log.all())
	require.Len(t, built, 2)
	assert.Equal(t, testApp+":1.2.0", built[0].String())
	assert.Equal(t, testSidecar+":1.2.0", built[1].String())
}

func TestDockerBuilder_UntaggedSkipsCheckout(t *testing.T) {
	log := &eventLog{}
	proc := loggingManager(log, nil)
	b := NewDockerBuilder(testDockerConfig(), proc, &fakeCheckouter{log: log}, nil, nil)

	built, err := b.Build(context.Background(), "")
	require.NoError(t, err)

	events := log.all()
	require.Len(t, events, 2)
	assert.Equal(t, "docker build -t "+testApp+":latest build/app/src", events[0])
	assert.Contains(t, events[1], "APP_IMAGE="+testApp+":latest")
	assert.Equal(t, "latest", built[0].Tag)
}

func TestDockerBuilder_DockerfileResolvedAgainstContext(t *testing.T) {
	cfg := testDockerConfig()
	cfg.App.Dockerfile = "Dockerfile.prod"
	cfg.Sidecar = ImageSource{}
	proc := &process.MockManager{}
	b := NewDockerBuilder(cfg, proc, nil, nil, nil)

	built, err := b.Build(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"docker build -t " + testApp + ":latest -f build/app/src/Dockerfile.prod build/app/src",
	}, proc.Lines())
	assert.Len(t, built, 1, "sidecar skipped when not configured")
}

func TestDockerBuilder_AppFailureStopsAndLogsTail(t *testing.T) {
	log := &eventLog{}
	cmdErr := util.NewCommandError("docker build", 1, "", nil)
	proc := loggingManager(log, func(line string) error {
		if strings.Contains(line, testApp+":1.2.0 ") {
			return cmdErr
		}
		return nil
	})
	exporter := logging.NewBufferedExporter()
	logger := logging.New(logging.Config{Quiet: true, Exporter: exporter})
	b := NewDockerBuilder(testDockerConfig(), proc, &fakeCheckouter{log: log}, nil, logger)

	built, err := b.Build(context.Background(), "1.2.0")
	require.Error(t, err)
	assert.Nil(t, built)
	assert.ErrorIs(t, err, ErrBuildFailed)

	var got *util.CommandError
	assert.True(t, errors.As(err, &got))

	events := log.all()
	assert.Equal(t, "restore", events[len(events)-1], "checkout restored and sidecar never built")

	var tail string
	for _, e := range exporter.Entries() {
		if e.Message == "image build failed" {
			tail, _ = e.Attrs["output_tail"].(string)
		}
	}
	assert.Contains(t, tail, "step output for docker build")
}

func TestDockerBuilder_SidecarFailureReturnsAppImage(t *testing.T) {
	log := &eventLog{}
	proc := loggingManager(log, func(line string) error {
		if strings.Contains(line, "--build-arg") {
			return errors.New("exit status 1")
		}
		return nil
	})
	b := NewDockerBuilder(testDockerConfig(), proc, nil, nil, nil)

	built, err := b.Build(context.Background(), "")
	assert.ErrorIs(t, err, ErrBuildFailed)
	require.Len(t, built, 1)
	assert.Equal(t, testApp, built[0].Repository)
}

func TestDockerBuilder_CheckoutFailure(t *testing.T) {
	proc := &process.MockManager{}
	b := NewDockerBuilder(testDockerConfig(), proc, &fakeCheckouter{err: errors.New("unknown ref")}, nil, nil)

	_, err := b.Build(context.Background(), "nope")
	require.Error(t, err)
	assert.Empty(t, proc.Calls())
}

func TestDockerBuilder_TaggedWithoutRepository(t *testing.T) {
	b := NewDockerBuilder(testDockerConfig(), &process.MockManager{}, nil, nil, nil)
	_, err := b.Build(context.Background(), "1.2.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git repository")
}

// =============================================================================
// DockerPublisher Tests
// =============================================================================

func TestDockerPublisher_PushesAppThenSidecar(t *testing.T) {
	auth := &countingAuth{}
	proc := &process.MockManager{}
	p := NewDockerPublisher(testDockerConfig(), proc, auth, nil, nil)

	pushed, err := p.Push(context.Background(), "1.2.0")
	require.NoError(t, err)

	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, []string{
		"docker push " + testApp + ":1.2.0",
		"docker push " + testSidecar + ":1.2.0",
	}, proc.Lines())
	assert.Len(t, pushed, 2)
}

func TestDockerPublisher_PartialPush(t *testing.T) {
	proc := &process.MockManager{
		RunStreamingFunc: func(ctx context.Context, dir string, env []string, out io.Writer, name string, args ...string) error {
			if strings.HasPrefix(args[1], testSidecar) {
				return errors.New("denied")
			}
			return nil
		},
	}
	p := NewDockerPublisher(testDockerConfig(), proc, nil, nil, nil)

	pushed, err := p.Push(context.Background(), "1.2.0")
	var pushErr *PushError
	require.True(t, errors.As(err, &pushErr))
	assert.Equal(t, testSidecar, pushErr.Failed.Repository)
	require.Len(t, pushErr.Pushed, 1)
	assert.Equal(t, testApp, pushErr.Pushed[0].Repository)
	assert.Equal(t, pushErr.Pushed, pushed)
}

func TestDockerPublisher_LoginFailureSkipsPush(t *testing.T) {
	proc := &process.MockManager{}
	p := NewDockerPublisher(testDockerConfig(), proc, &countingAuth{err: ErrRegistryAuth}, nil, nil)

	_, err := p.Push(context.Background(), "1.2.0")
	assert.ErrorIs(t, err, ErrRegistryAuth)
	assert.Empty(t, proc.Calls())
}

// =============================================================================
// ECRAuth Tests
// =============================================================================

func TestECRAuth_LoginPipesPassword(t *testing.T) {
	token := base64.StdEncoding.EncodeToString([]byte("AWS:s3cret"))
	client := &fakeECR{out: tokenOutput(token, "https://123456789012.dkr.ecr.us-east-1.amazonaws.com")}
	proc := &process.MockManager{}
	auth := NewECRAuth(client, proc, "", nil)

	require.NoError(t, auth.Login(context.Background()))

	calls := proc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "RunWithInput", calls[0].Method)
	assert.Equal(t, "docker login --username AWS --password-stdin https://123456789012.dkr.ecr.us-east-1.amazonaws.com", calls[0].Line())
	assert.Equal(t, []byte("s3cret"), calls[0].Input)
	assert.NotContains(t, calls[0].Line(), "s3cret")
}

func TestECRAuth_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeECR
	}{
		{"api error", &fakeECR{err: errors.New("AccessDenied")}},
		{"no data", &fakeECR{out: &ecr.GetAuthorizationTokenOutput{}}},
		{"bad base64", &fakeECR{out: tokenOutput("!!!", "https://r")}},
		{"no colon", &fakeECR{out: tokenOutput(base64.StdEncoding.EncodeToString([]byte("AWS")), "https://r")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &process.MockManager{}
			err := NewECRAuth(tt.client, proc, "docker", nil).Login(context.Background())
			assert.ErrorIs(t, err, ErrRegistryAuth)
			assert.Empty(t, proc.Calls())
		})
	}
}

func TestECRAuth_DockerLoginFailure(t *testing.T) {
	token := base64.StdEncoding.EncodeToString([]byte("AWS:pw"))
	proc := &process.MockManager{
		RunWithInputFunc: func(ctx context.Context, dir string, input []byte, name string, args ...string) ([]byte, error) {
			return nil, errors.New("daemon not running")
		},
	}
	err := NewECRAuth(&fakeECR{out: tokenOutput(token, "https://r")}, proc, "docker", nil).Login(context.Background())
	assert.ErrorIs(t, err, ErrRegistryAuth)
	assert.Contains(t, err.Error(), "daemon not running")
}

// =============================================================================
// Compose Strategy Tests
// =============================================================================

func TestComposeBuilder_TaggedBuild(t *testing.T) {
	log := &eventLog{}
	auth := &countingAuth{}
	exec := &compose.MockExecutor{
		BuildFunc: func(ctx context.Context, opts compose.Options) error {
			log.add("compose build " + opts.Env[ComposeTagEnv])
			return nil
		},
	}
	cfg := ComposeConfig{App: ImageSource{Repository: "app"}, Sidecar: ImageSource{Repository: "nginx"}}
	b := NewComposeBuilder(cfg, exec, auth, &fakeCheckouter{log: log}, nil, nil)

	built, err := b.Build(context.Background(), "1.2.0")
	require.NoError(t, err)

	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, []string{"checkout 1.2.0", "compose build 1.2.0", "restore"}, log.all())
	require.Len(t, built, 2)
	assert.Equal(t, "nginx:1.2.0", built[1].String())
}

func TestComposeBuilder_UntaggedLeavesEnvUnset(t *testing.T) {
	exec := &compose.MockExecutor{}
	b := NewComposeBuilder(ComposeConfig{App: ImageSource{Repository: "app"}}, exec, nil, nil, nil, nil)

	built, err := b.Build(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, exec.BuildCalls, 1)
	assert.Nil(t, exec.BuildCalls[0].Env)
	assert.Equal(t, "app:latest", built[0].String())
}

func TestComposeBuilder_FailureWrapsBuildFailed(t *testing.T) {
	exec := &compose.MockExecutor{BuildFunc: func(ctx context.Context, opts compose.Options) error {
		return errors.New("compose build: exit status 1")
	}}
	b := NewComposeBuilder(ComposeConfig{}, exec, nil, nil, nil, nil)

	_, err := b.Build(context.Background(), "")
	assert.ErrorIs(t, err, ErrBuildFailed)
}

func TestComposePublisher_Push(t *testing.T) {
	auth := &countingAuth{}
	exec := &compose.MockExecutor{}
	p := NewComposePublisher(ComposeConfig{App: ImageSource{Repository: "app"}}, exec, auth, nil, nil)

	pushed, err := p.Push(context.Background(), "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, auth.calls)
	require.Len(t, exec.PushCalls, 1)
	assert.Equal(t, map[string]string{ComposeTagEnv: "2.0.0"}, exec.PushCalls[0].Env)
	assert.Equal(t, "app:2.0.0", pushed[0].String())
}

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harekrishnarai/flowtaint/pkg/github"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	info  github.RepositoryInfo
	err   error
}

func (f *fakeSource) RepositoryInfo(_ context.Context, name string) (github.RepositoryInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.info, f.err
}

func TestRepositoryCreatedOnce(t *testing.T) {
	reg := NewRegistry(nil)
	a := reg.Repository("octo/repo")
	b := reg.Repository("octo/repo")
	assert.Same(t, a, b)
	assert.Equal(t, []string{"octo/repo"}, reg.Names())
}

func TestLoadFetchesOnce(t *testing.T) {
	src := &fakeSource{info: github.RepositoryInfo{Fork: true, DefaultBranch: "main"}}
	reg := NewRegistry(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Load(context.Background(), "octo/fork")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, src.calls)
	assert.True(t, reg.IsFork("octo/fork"))
	assert.Equal(t, "main", reg.Repository("octo/fork").DefaultBranch())
}

func TestLoadErrorIsRetried(t *testing.T) {
	src := &fakeSource{err: errors.New("rate limited")}
	reg := NewRegistry(src)

	_, err := reg.Load(context.Background(), "octo/repo")
	require.Error(t, err)

	src.err = nil
	_, err = reg.Load(context.Background(), "octo/repo")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestSelfHostedWorkflows(t *testing.T) {
	r := NewRegistry(nil).Repository("octo/repo")
	r.AddSelfHostedWorkflows([]string{"b.yml", "a.yml"})
	r.AddSelfHostedWorkflows([]string{"a.yml"})
	assert.Equal(t, []string{"a.yml", "b.yml"}, r.SelfHostedWorkflows())
}

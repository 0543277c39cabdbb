package deploy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"

	"github.com/helvetia-cloud/worker/internal/docker"
)

// fakeDocker implements docker.API for pipeline tests. Mutating calls are
// appended to trace in order, so tests can assert that the replacement
// starts before the old generation stops.
type fakeDocker struct {
	mu    sync.Mutex
	seq   int
	trace []string

	running []container.Summary // returned for Status == "running" listings
	all     []container.Summary // returned for All listings
	listErr error

	inspectResults map[string]container.InspectResponse
	inspectErr     map[string]error

	createCalls   []string
	createConfigs map[string]*container.Config
	createHosts   map[string]*container.HostConfig
	createNets    map[string]*network.NetworkingConfig
	createErr     error

	startCalls []string
	startErr   map[string]error

	stopCalls   []string
	stopErr     map[string]error
	removeCalls []string
	removeErr   map[string]error

	pullCalls     []string
	pullErr       map[string]error
	pullAuthCalls []string

	execScripts []string
	execOutput  string
	execExit    int
	execErr     error

	networkCalls []string
	networkErr   error
	networkPanic bool
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		inspectResults: make(map[string]container.InspectResponse),
		inspectErr:     make(map[string]error),
		createConfigs:  make(map[string]*container.Config),
		createHosts:    make(map[string]*container.HostConfig),
		createNets:     make(map[string]*network.NetworkingConfig),
		startErr:       make(map[string]error),
		stopErr:        make(map[string]error),
		removeErr:      make(map[string]error),
		pullErr:        make(map[string]error),
	}
}

func (f *fakeDocker) record(entry string) {
	f.mu.Lock()
	f.trace = append(f.trace, entry)
	f.mu.Unlock()
}

// traceIndex returns the position of the first matching trace entry, or -1.
func (f *fakeDocker) traceIndex(entry string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.trace {
		if e == entry {
			return i
		}
	}
	return -1
}

func (f *fakeDocker) ListContainers(_ context.Context, opts docker.ListOptions) ([]container.Summary, error) {
	if opts.Status == "running" {
		f.record("list-running")
		return f.running, f.listErr
	}
	f.record("list-all")
	return f.all, f.listErr
}

func (f *fakeDocker) InspectContainer(_ context.Context, id string) (container.InspectResponse, error) {
	f.record("inspect:" + id)
	if err, ok := f.inspectErr[id]; ok && err != nil {
		return container.InspectResponse{}, err
	}
	return f.inspectResults[id], nil
}

func (f *fakeDocker) CreateContainer(_ context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error) {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, name)
	f.createConfigs[name] = cfg
	f.createHosts[name] = hostCfg
	f.createNets[name] = netCfg
	f.seq++
	id := fmt.Sprintf("ctr-%d", f.seq)
	f.trace = append(f.trace, "create:"+name)
	f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	return id, nil
}

func (f *fakeDocker) StartContainer(_ context.Context, id string) error {
	f.mu.Lock()
	f.startCalls = append(f.startCalls, id)
	f.trace = append(f.trace, "start:"+id)
	f.mu.Unlock()
	if err, ok := f.startErr[id]; ok {
		return err
	}
	return nil
}

func (f *fakeDocker) RestartContainer(_ context.Context, id string) error {
	f.record("restart:" + id)
	return nil
}

func (f *fakeDocker) StopContainer(_ context.Context, id string, _ int) error {
	f.mu.Lock()
	f.stopCalls = append(f.stopCalls, id)
	f.trace = append(f.trace, "stop:"+id)
	f.mu.Unlock()
	if err, ok := f.stopErr[id]; ok {
		return err
	}
	return nil
}

func (f *fakeDocker) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, id)
	f.trace = append(f.trace, "remove:"+id)
	f.mu.Unlock()
	if err, ok := f.removeErr[id]; ok {
		return err
	}
	return nil
}

func (f *fakeDocker) RemoveContainerWithVolumes(_ context.Context, id string) error {
	f.record("remove-volumes:" + id)
	return nil
}

func (f *fakeDocker) ContainerLogs(_ context.Context, _ string, _ int) (string, error) {
	return "", nil
}

func (f *fakeDocker) ExecContainer(_ context.Context, id string, _ []string, _ int) (int, string, error) {
	f.record("exec:" + id)
	return 0, "", nil
}

func (f *fakeDocker) ExecContainerStream(_ context.Context, id string, cmd []string, onChunk func([]byte)) (int, error) {
	f.mu.Lock()
	if len(cmd) == 3 && cmd[0] == "sh" && cmd[1] == "-c" {
		f.execScripts = append(f.execScripts, cmd[2])
	}
	f.trace = append(f.trace, "exec-stream:"+id)
	f.mu.Unlock()
	if f.execErr != nil {
		return -1, f.execErr
	}
	if f.execOutput != "" {
		onChunk([]byte(f.execOutput))
	}
	return f.execExit, nil
}

func (f *fakeDocker) PullImage(_ context.Context, refStr string) error {
	f.mu.Lock()
	f.pullCalls = append(f.pullCalls, refStr)
	f.trace = append(f.trace, "pull:"+refStr)
	f.mu.Unlock()
	if err, ok := f.pullErr[refStr]; ok {
		return err
	}
	return nil
}

func (f *fakeDocker) PullImageWithAuth(_ context.Context, refStr, username, token string) error {
	f.mu.Lock()
	f.pullAuthCalls = append(f.pullAuthCalls, refStr+"|"+username+"|"+token)
	f.trace = append(f.trace, "pull-auth:"+refStr)
	f.mu.Unlock()
	if err, ok := f.pullErr[refStr]; ok {
		return err
	}
	return nil
}

func (f *fakeDocker) RemoveImage(_ context.Context, ref string) error {
	f.record("remove-image:" + ref)
	return nil
}

func (f *fakeDocker) TagImage(_ context.Context, src, target string) error {
	f.record("tag:" + src + "->" + target)
	return nil
}

func (f *fakeDocker) ListImages(_ context.Context) ([]docker.ImageSummary, error) {
	return nil, nil
}

func (f *fakeDocker) PruneImages(_ context.Context) (docker.ImagePruneResult, error) {
	return docker.ImagePruneResult{}, nil
}

func (f *fakeDocker) EnsureNetwork(_ context.Context, name string) error {
	if f.networkPanic {
		panic("network driver exploded")
	}
	f.mu.Lock()
	f.networkCalls = append(f.networkCalls, name)
	f.trace = append(f.trace, "network:"+name)
	f.mu.Unlock()
	return f.networkErr
}

func (f *fakeDocker) ListVolumes(_ context.Context, _ map[string]string) ([]docker.VolumeSummary, error) {
	return nil, nil
}

func (f *fakeDocker) RemoveVolume(_ context.Context, name string, _ bool) error {
	f.record("remove-volume:" + name)
	return nil
}

func (f *fakeDocker) Ping(_ context.Context) error { return nil }
func (f *fakeDocker) Close() error                 { return nil }

var _ docker.API = (*fakeDocker)(nil)

// fakeStore records the pipeline's database writes.
type fakeStore struct {
	mu sync.Mutex

	buildingCalls []string
	buildingErr   error

	finishCalls []finishCall
	finishErr   error

	statusCalls []statusCall
	statusErr   error
}

type finishCall struct {
	id, status, imageTag, logs string
}

type statusCall struct {
	id, status string
}

func (s *fakeStore) SetDeploymentBuilding(_ context.Context, id string) error {
	s.mu.Lock()
	s.buildingCalls = append(s.buildingCalls, id)
	s.mu.Unlock()
	return s.buildingErr
}

func (s *fakeStore) FinishDeployment(_ context.Context, id, status, imageTag, logs string) error {
	s.mu.Lock()
	s.finishCalls = append(s.finishCalls, finishCall{id, status, imageTag, logs})
	s.mu.Unlock()
	return s.finishErr
}

func (s *fakeStore) SetServiceStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	s.statusCalls = append(s.statusCalls, statusCall{id, status})
	s.mu.Unlock()
	return s.statusErr
}

func (s *fakeStore) lastStatus() (statusCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statusCalls) == 0 {
		return statusCall{}, false
	}
	return s.statusCalls[len(s.statusCalls)-1], true
}

// fakeLocker runs the critical section inline, or refuses when err is set.
type fakeLocker struct {
	mu    sync.Mutex
	locks []string
	err   error
}

func (l *fakeLocker) WithLock(ctx context.Context, serviceID string, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	l.locks = append(l.locks, serviceID)
	l.mu.Unlock()
	return fn(ctx)
}

// fakePublisher records every chunk published to the live log stream.
type fakePublisher struct {
	mu     sync.Mutex
	chunks []string
}

func (p *fakePublisher) Publish(_ context.Context, _ string, chunk string) {
	p.mu.Lock()
	p.chunks = append(p.chunks, chunk)
	p.mu.Unlock()
}

func (p *fakePublisher) joined() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.chunks, "")
}

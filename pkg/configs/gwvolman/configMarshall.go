package gwvolman

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/gwvolman.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of the gwvolman worker and its submission API.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `Config`.
type ConfigMarshall struct {
	Girder            *GirderConfigMarshall   `yaml:"girder"`
	HostDir           string                  `yaml:"hostDir,omitempty"`
	Domain            string                  `yaml:"domain,omitempty"`
	TraefikEntrypoint string                  `yaml:"traefikEntrypoint,omitempty"`
	Registry          *RegistryConfigMarshall `yaml:"registry,omitempty"`
	DataONE           *DataONEConfigMarshall  `yaml:"dataone,omitempty"`
	Cluster           *ClusterConfigMarshall  `yaml:"cluster"`
	Database          string                  `yaml:"database"`
	Build             *BuildConfigMarshall    `yaml:"build,omitempty"`
	Worker            *WorkerConfigMarshall   `yaml:"worker,omitempty"`
	Api               *ApiConfigMarshall      `yaml:"api,omitempty"`
}

var _ Marshalled[*Config] = &ConfigMarshall{}

func (c *ConfigMarshall) trySeal(path string) *Config {
	return &Config{
		girder:            nonnil(c.Girder, path+".girder").trySeal(path + ".girder"),
		hostDir:           orDefault(c.HostDir, "/host"),
		domain:            orDefault(c.Domain, "local.wholetale.org"),
		traefikEntrypoint: orDefault(c.TraefikEntrypoint, "http"),
		registry:          orEmpty(c.Registry).trySeal(path + ".registry"),
		dataone:           orEmpty(c.DataONE).trySeal(path + ".dataone"),
		cluster:           nonnil(c.Cluster, path+".cluster").trySeal(path + ".cluster"),
		database:          required(c.Database, path+".database"),
		build:             orEmpty(c.Build).trySeal(path + ".build"),
		worker:            orEmpty(c.Worker).trySeal(path + ".worker"),
		api:               orEmpty(c.Api).trySeal(path + ".api"),
	}
}

type GirderConfigMarshall struct {
	ApiUrl string `yaml:"apiUrl"`
}

func (g *GirderConfigMarshall) trySeal(path string) *GirderConfig {
	return &GirderConfig{
		apiUrl: required(g.ApiUrl, path+".apiUrl"),
	}
}

type RegistryConfigMarshall struct {
	// Host overrides the registry host discovered from the cluster.
	Host     string `yaml:"host,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

func (r *RegistryConfigMarshall) trySeal(string) *RegistryConfig {
	return &RegistryConfig{
		host:     r.Host,
		user:     orDefault(r.User, "fido"),
		password: r.Password,
		insecure: r.Insecure,
	}
}

type DataONEConfigMarshall struct {
	Url string `yaml:"url,omitempty"`
}

func (d *DataONEConfigMarshall) trySeal(string) *DataONEConfig {
	return &DataONEConfig{
		url: orDefault(d.Url, "https://cn.dataone.org/cn"),
	}
}

type ClusterConfigMarshall struct {
	Namespace  string                    `yaml:"namespace"`
	Domain     string                    `yaml:"domain,omitempty"`
	NodeName   string                    `yaml:"nodeName,omitempty"`
	Volume     *VolumeConfigMarshall     `yaml:"volume"`
	Session    *SessionConfigMarshall    `yaml:"session,omitempty"`
	Deployment *DeploymentConfigMarshall `yaml:"deployment,omitempty"`
}

func (cm *ClusterConfigMarshall) trySeal(path string) *ClusterConfig {
	return &ClusterConfig{
		namespace:  required(cm.Namespace, path+".namespace"),
		domain:     orDefault(cm.Domain, "cluster.local"),
		nodeName:   cm.NodeName,
		volume:     nonnil(cm.Volume, path+".volume").trySeal(path + ".volume"),
		session:    orEmpty(cm.Session).trySeal(path + ".session"),
		deployment: orEmpty(cm.Deployment).trySeal(path + ".deployment"),
	}
}

type VolumeConfigMarshall struct {
	StorageClassName string `yaml:"storageClassName"`
	Capacity         string `yaml:"capacity,omitempty"`
	BindTimeout      string `yaml:"bindTimeout,omitempty"`
}

func (vm *VolumeConfigMarshall) trySeal(path string) *VolumeConfig {
	capacity, err := resource.ParseQuantity(orDefault(vm.Capacity, "1Gi"))
	if err != nil {
		panic(fmt.Errorf("%s.capacity can not be parsed: %w", path, err))
	}
	return &VolumeConfig{
		storageClassName: required(vm.StorageClassName, path+".storageClassName"),
		capacity:         capacity,
		bindTimeout:      duration(orDefault(vm.BindTimeout, "2m"), path+".bindTimeout"),
	}
}

type SessionConfigMarshall struct {
	IngressClassName string `yaml:"ingressClassName,omitempty"`
	ReadyTimeout     string `yaml:"readyTimeout,omitempty"`
}

func (sm *SessionConfigMarshall) trySeal(path string) *SessionConfig {
	return &SessionConfig{
		ingressClassName: orDefault(sm.IngressClassName, "traefik"),
		readyTimeout:     duration(orDefault(sm.ReadyTimeout, "30s"), path+".readyTimeout"),
	}
}

// Names of Ingress objects which expose the Whole Tale services.
type DeploymentConfigMarshall struct {
	Dashboard string `yaml:"dashboard,omitempty"`
	Girder    string `yaml:"girder,omitempty"`
	Registry  string `yaml:"registry,omitempty"`
}

func (dm *DeploymentConfigMarshall) trySeal(string) *DeploymentConfig {
	return &DeploymentConfig{
		dashboard: orDefault(dm.Dashboard, "wt-dashboard"),
		girder:    orDefault(dm.Girder, "wt-girder"),
		registry:  orDefault(dm.Registry, "wt-registry"),
	}
}

type BuildConfigMarshall struct {
	// Mode is "subprocess" or "job".
	Mode    string `yaml:"mode,omitempty"`
	Image   string `yaml:"image,omitempty"`
	Command string `yaml:"command,omitempty"`
	TmpDir  string `yaml:"tmpDir,omitempty"`
}

func (bm *BuildConfigMarshall) trySeal(path string) *BuildConfig {
	mode := BuildMode(orDefault(bm.Mode, string(BuildInSubprocess)))
	switch mode {
	case BuildInSubprocess, BuildInJob:
	default:
		panic(fmt.Errorf(`%s.mode should be "subprocess" or "job", but "%s"`, path, mode))
	}
	return &BuildConfig{
		mode:    mode,
		image:   orDefault(bm.Image, "jupyter/repo2docker:0.7.0"),
		command: orDefault(bm.Command, "jupyter-repo2docker"),
		tmpDir:  orDefault(bm.TmpDir, "/host/tmp"),
	}
}

type WorkerConfigMarshall struct {
	Name               string `yaml:"name,omitempty"`
	StaleAfter         string `yaml:"staleAfter,omitempty"`
	CancelPollInterval string `yaml:"cancelPollInterval,omitempty"`
	InstanceTimeout    string `yaml:"instanceTimeout,omitempty"`
}

func (wm *WorkerConfigMarshall) trySeal(path string) *WorkerConfig {
	return &WorkerConfig{
		name:               wm.Name,
		staleAfter:         duration(orDefault(wm.StaleAfter, "1h"), path+".staleAfter"),
		cancelPollInterval: duration(orDefault(wm.CancelPollInterval, "2s"), path+".cancelPollInterval"),
		instanceTimeout:    duration(orDefault(wm.InstanceTimeout, "10m"), path+".instanceTimeout"),
	}
}

type ApiConfigMarshall struct {
	Port int32 `yaml:"port,omitempty"`
}

func (am *ApiConfigMarshall) trySeal(string) *ApiConfig {
	return &ApiConfig{
		port: orDefault(am.Port, 8080),
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

func orDefault[T comparable](v T, d T) T {
	if v == *new(T) {
		return d
	}
	return v
}

// optional sections are sealed from their zero value.
func orEmpty[T any](v *T) *T {
	if v == nil {
		return new(T)
	}
	return v
}

func duration(v string, path string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	if d <= 0 {
		panic(fmt.Errorf("%s should be positive", path))
	}
	return d
}

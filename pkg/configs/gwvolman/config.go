package gwvolman

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Configuration of gwvolman.
//
// to get `Config` instance, use `Unmarshal` or `LoadConfig`.
type Config struct {
	girder            *GirderConfig
	hostDir           string
	domain            string
	traefikEntrypoint string
	registry          *RegistryConfig
	dataone           *DataONEConfig
	cluster           *ClusterConfig
	database          string
	build             *BuildConfig
	worker            *WorkerConfig
	api               *ApiConfig
}

func (c *Config) Girder() *GirderConfig {
	return c.girder
}

// Directory where the host filesystem is mounted in the worker container.
// default = "/host"
func (c *Config) HostDir() string {
	return c.hostDir
}

// Public domain of the deployment. Tale instances are served on its subdomains.
func (c *Config) Domain() string {
	return c.domain
}

// Scheme used in instance URLs. default = "http"
func (c *Config) TraefikEntrypoint() string {
	return c.traefikEntrypoint
}

func (c *Config) Registry() *RegistryConfig {
	return c.registry
}

func (c *Config) DataONE() *DataONEConfig {
	return c.dataone
}

func (c *Config) Cluster() *ClusterConfig {
	return c.cluster
}

// Connection string for the job queue database.
func (c *Config) Database() string {
	return c.database
}

func (c *Config) Build() *BuildConfig {
	return c.build
}

func (c *Config) Worker() *WorkerConfig {
	return c.worker
}

func (c *Config) Api() *ApiConfig {
	return c.api
}

type GirderConfig struct {
	apiUrl string
}

// Girder API root, like "https://girder.example.com/api/v1".
func (g *GirderConfig) ApiUrl() string {
	return g.apiUrl
}

type RegistryConfig struct {
	host     string
	user     string
	password string
	insecure bool
}

// Registry host. When empty, it should be discovered from the cluster.
func (r *RegistryConfig) Host() string {
	return r.host
}

func (r *RegistryConfig) User() string {
	return r.user
}

func (r *RegistryConfig) Password() string {
	return r.password
}

// Insecure is true if the registry is accessed with plain http.
func (r *RegistryConfig) Insecure() bool {
	return r.insecure
}

type DataONEConfig struct {
	url string
}

// Coordinating node URL. default = "https://cn.dataone.org/cn"
func (d *DataONEConfig) Url() string {
	return d.url
}

type ClusterConfig struct {
	namespace  string
	domain     string
	nodeName   string
	volume     *VolumeConfig
	session    *SessionConfig
	deployment *DeploymentConfig
}

// k8s namespace where Tale instances run.
func (c *ClusterConfig) Namespace() string {
	return c.namespace
}

// k8s cluster domain. default = "cluster.local"
func (c *ClusterConfig) Domain() string {
	return c.domain
}

// Name of the node where this worker runs. Volumes are pinned to it.
func (c *ClusterConfig) NodeName() string {
	return c.nodeName
}

func (c *ClusterConfig) Volume() *VolumeConfig {
	return c.volume
}

func (c *ClusterConfig) Session() *SessionConfig {
	return c.session
}

func (c *ClusterConfig) Deployment() *DeploymentConfig {
	return c.deployment
}

type VolumeConfig struct {
	storageClassName string
	capacity         resource.Quantity
	bindTimeout      time.Duration
}

// StorageClass for Tale volumes. It should provision node local volumes.
func (v *VolumeConfig) StorageClassName() string {
	return v.storageClassName
}

func (v *VolumeConfig) Capacity() resource.Quantity {
	return v.capacity
}

// How long create_volume waits for a volume to be bound.
func (v *VolumeConfig) BindTimeout() time.Duration {
	return v.bindTimeout
}

type SessionConfig struct {
	ingressClassName string
	readyTimeout     time.Duration
}

func (s *SessionConfig) IngressClassName() string {
	return s.ingressClassName
}

// How long launch_container waits for an instance to run.
func (s *SessionConfig) ReadyTimeout() time.Duration {
	return s.readyTimeout
}

type DeploymentConfig struct {
	dashboard string
	girder    string
	registry  string
}

// Ingress name of the dashboard.
func (d *DeploymentConfig) Dashboard() string {
	return d.dashboard
}

// Ingress name of girder.
func (d *DeploymentConfig) Girder() string {
	return d.girder
}

// Ingress name of the image registry.
func (d *DeploymentConfig) Registry() string {
	return d.registry
}

type BuildMode string

const (
	BuildInSubprocess BuildMode = "subprocess"
	BuildInJob        BuildMode = "job"
)

type BuildConfig struct {
	mode    BuildMode
	image   string
	command string
	tmpDir  string
}

func (b *BuildConfig) Mode() BuildMode {
	return b.mode
}

// repo2docker image used when Mode is BuildInJob.
func (b *BuildConfig) Image() string {
	return b.image
}

// repo2docker executable used when Mode is BuildInSubprocess.
func (b *BuildConfig) Command() string {
	return b.command
}

func (b *BuildConfig) TmpDir() string {
	return b.tmpDir
}

type WorkerConfig struct {
	name               string
	staleAfter         time.Duration
	cancelPollInterval time.Duration
	instanceTimeout    time.Duration
}

// Name of this worker recorded on claimed jobs. Empty means the hostname.
func (w *WorkerConfig) Name() string {
	return w.name
}

// Running jobs not updated for this duration are failed by the reclaim loop.
func (w *WorkerConfig) StaleAfter() time.Duration {
	return w.staleAfter
}

func (w *WorkerConfig) CancelPollInterval() time.Duration {
	return w.cancelPollInterval
}

// How long import_tale waits for the spawned instance.
func (w *WorkerConfig) InstanceTimeout() time.Duration {
	return w.instanceTimeout
}

type ApiConfig struct {
	port int32
}

func (a *ApiConfig) Port() int32 {
	return a.port
}

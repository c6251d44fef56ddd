package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/workloads/session"
)

const (
	// DefaultPort is the port of sessions whose config does not tell.
	DefaultPort = 8888

	// DefaultTargetMount is where tale volumes are mounted when the config does not tell.
	DefaultTargetMount = "/home/jovyan/work"
)

// ContainerConfig is a config of a session, resolved from an image and a tale.
type ContainerConfig struct {
	Image       string
	Command     string
	Port        int
	User        string
	CPUShares   string
	MemLimit    int64
	TargetMount string
	URLPath     string
	Environment []string
}

// ContainerConfigOf resolves config of the tale's session.
//
// The image config is overlaid with the tale config.
func ContainerConfigOf(
	ctx context.Context, gc girder.Client, tale girder.Tale,
	registryHost string, dashboardUrl string,
) (ContainerConfig, error) {
	image, err := gc.GetImage(ctx, tale.ImageID)
	if err != nil {
		return ContainerConfig{}, err
	}
	c := image.Config.Overlay(tale.Config)

	ret := ContainerConfig{
		Image:       registryHost + "/" + tale.ImageID,
		Port:        DefaultPort,
		MemLimit:    MemLimit((*string)(c.MemLimit)),
		TargetMount: DefaultTargetMount,
		Environment: EnvWithCSP(c.Environment, dashboardUrl),
	}
	set := func(dest *string, v *string) {
		if v != nil {
			*dest = *v
		}
	}
	set(&ret.Command, c.Command)
	set(&ret.User, c.User)
	set(&ret.CPUShares, (*string)(c.CPUShares))
	set(&ret.TargetMount, c.TargetMount)
	set(&ret.URLPath, c.URLPath)
	if c.Port != nil {
		ret.Port = *c.Port
	}
	return ret, nil
}

// LaunchContainer starts a session of an instance on the volume created by CreateVolume.
func LaunchContainer(ctx context.Context, env *Env, call Call, payload girder.ContainerInfo) (*girder.ContainerInfo, error) {
	gc := call.Girder
	logger := call.Logger

	_, inst, err := userAndInstance(ctx, gc, payload.InstanceID)
	if err != nil {
		return nil, err
	}
	tale, err := gc.GetTale(ctx, inst.TaleID)
	if err != nil {
		return nil, err
	}

	dashboard, err := env.Deployment.DashboardURL(ctx)
	if err != nil {
		return nil, err
	}
	cc, err := ContainerConfigOf(ctx, gc, tale, env.Registry.Host(), dashboard)
	if err != nil {
		return nil, err
	}

	token := env.token()
	var args []string
	if cc.Command != "" {
		rendered := RenderTemplate(cc.Command, map[string]string{
			"base_path": "",
			"port":      strconv.Itoa(cc.Port),
			"ip":        "0.0.0.0",
			"token":     token,
		})
		logger.Printf("command = %s", rendered)
		if args, err = SplitCommand(rendered); err != nil {
			return nil, NewUserError(fmt.Sprintf("invalid command of the tale: %s", cc.Command), err)
		}
	}
	urlPath := ""
	if cc.URLPath != "" {
		urlPath = RenderTemplate(cc.URLPath, map[string]string{"token": token})
	}

	host := "tmp-" + strings.ToLower(env.random(12))
	conf := env.Config
	sconf := session.Config{
		Cluster:    conf.Cluster(),
		Domain:     conf.Domain(),
		Entrypoint: conf.TraefikEntrypoint(),
	}
	sess, err := session.Launch(
		ctx, env.Cluster, sconf,
		session.Builder{
			Host:        host,
			Image:       cc.Image,
			Args:        args,
			Env:         cc.Environment,
			Port:        int32(cc.Port),
			MemLimit:    cc.MemLimit,
			Volume:      payload.VolumeName,
			TargetMount: cc.TargetMount,
			Node:        payload.NodeID,
			TaleID:      tale.ID,
			InstanceID:  inst.ID,
		},
		conf.Cluster().Session().ReadyTimeout(),
		env.pollInterval(200*time.Millisecond),
	)
	if err != nil {
		return nil, err
	}
	if !sess.Ready() {
		logger.Printf("session %s is not ready yet", sess.Name())
	}

	ret := payload
	ret.URL = fmt.Sprintf(
		"%s://%s/%s", conf.TraefikEntrypoint(), session.FQDN(host, conf.Domain()), urlPath,
	)
	ret.Name = sess.Name()
	return &ret, nil
}

type UpdateArgs struct {
	InstanceID string `json:"instanceId"`
	Image      string `json:"image"`
}

// UpdateResult is the result of UpdateContainer.
type UpdateResult struct {
	ImageDigest string `json:"image_digest"`
}

// UpdateContainer replaces the image of an instance's session.
//
// Failures of the update are logged, not returned.
func UpdateContainer(ctx context.Context, env *Env, call Call, args UpdateArgs) (*UpdateResult, error) {
	logger := call.Logger

	_, inst, err := userAndInstance(ctx, call.Girder, args.InstanceID)
	if err != nil {
		return nil, err
	}
	ci := inst.ContainerInfo
	if ci == nil {
		return nil, nil
	}

	found, err := session.Exists(ctx, env.Cluster, ci.Name)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Printf("session is not present [%s]", ci.Name)
		return nil, nil
	}

	digest := env.Registry.Ref(args.Image)
	logger.Printf("restarting session [%s]", ci.Name)
	if err := session.UpdateImage(ctx, env.Cluster, ci.Name, digest); err != nil {
		logger.Printf("unable to send restart command to session [%s]: %s", ci.Name, err)
	} else {
		logger.Printf("restart command has been sent to session [%s]", ci.Name)
	}
	return &UpdateResult{ImageDigest: digest}, nil
}

// ShutdownContainer removes the session of an instance.
//
// Failures of the removal are logged, not returned.
func ShutdownContainer(ctx context.Context, env *Env, call Call, args InstanceArgs) (any, error) {
	logger := call.Logger

	_, inst, err := userAndInstance(ctx, call.Girder, args.InstanceID)
	if err != nil {
		return nil, err
	}
	ci := inst.ContainerInfo
	if ci == nil {
		return nil, nil
	}

	found, err := session.Exists(ctx, env.Cluster, ci.Name)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Printf("session is not present [%s]", ci.Name)
		return nil, nil
	}

	logger.Printf("releasing session [%s]", ci.Name)
	if err := session.Remove(ctx, env.Cluster, ci.Name); err != nil {
		logger.Printf("unable to release session [%s]: %s", ci.Name, err)
		return nil, nil
	}
	logger.Printf("session [%s] has been released", ci.Name)
	return nil, nil
}

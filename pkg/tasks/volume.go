package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	xe "github.com/whole-tale/gwvolman/pkg/errors"
	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/girderfs"
	"github.com/whole-tale/gwvolman/pkg/workloads/k8s/k8serrors"
	"github.com/whole-tale/gwvolman/pkg/workloads/volume"
)

const (
	// ApiKeyName is the name of the Girder api key girderfs mounts with.
	ApiKeyName = "tmpnb"

	// Owner of files in a tale volume.
	DefaultUser  = 1000
	DefaultGroup = 100
)

// ErrNoUser is returned when the Girder token does not belong to any user.
var ErrNoUser = errors.New("bad girder token: no user")

type InstanceArgs struct {
	InstanceID string `json:"instanceId"`
}

func userAndInstance(ctx context.Context, gc girder.Client, instanceId string) (girder.User, girder.Instance, error) {
	me, err := gc.Me(ctx)
	if err != nil {
		return girder.User{}, girder.Instance{}, err
	}
	if me == nil {
		return girder.User{}, girder.Instance{}, ErrNoUser
	}
	inst, err := gc.GetInstance(ctx, instanceId)
	if err != nil {
		return girder.User{}, girder.Instance{}, err
	}
	return *me, inst, nil
}

// CreateVolume provisions a tale volume for an instance and mounts girderfs into it.
func CreateVolume(ctx context.Context, env *Env, call Call, args InstanceArgs) (*girder.ContainerInfo, error) {
	gc := call.Girder
	logger := call.Logger

	user, inst, err := userAndInstance(ctx, gc, args.InstanceID)
	if err != nil {
		return nil, err
	}
	tale, err := gc.GetTale(ctx, inst.TaleID)
	if err != nil {
		return nil, err
	}

	node := env.Config.Cluster().NodeName()
	vol, err := volume.Provision(
		ctx, env.Cluster, env.Config.Cluster(),
		volume.Of(tale.ID, inst.ID, user.Login, env.random(6), node),
	)
	if err != nil {
		return nil, err
	}
	logger.Printf("volume %s is created", vol.Name())
	mountpoint := vol.MountPoint()
	logger.Printf("mountpoint: %s", mountpoint)

	onHost := filepath.Join(env.Config.HostDir(), mountpoint)
	if tale.NarrativeID != "" {
		if err := gc.DownloadFolderRecursive(ctx, tale.NarrativeID, onHost); err != nil {
			if _, ok := girder.AsHttpError(err); !ok {
				return nil, err
			}
			logger.Printf("WARN: narrative folder is not found for tale %s", tale.ID)
		}
	}

	if err := os.MkdirAll(onHost, os.FileMode(0o755)); err != nil {
		return nil, xe.Wrap(err)
	}
	if err := env.chown(onHost, DefaultUser, DefaultGroup); err != nil {
		return nil, err
	}

	home, err := gc.LoadOrCreateFolder(ctx, "Home", user.ID, girder.ParentUser)
	if err != nil {
		return nil, err
	}

	// girderfs resolves mountpoints in its own namespace, where volumes are
	// seen at the same path as in the host.
	for _, sub := range volume.Mountpoints {
		for _, dir := range []string{
			filepath.Join(onHost, sub), filepath.Join(mountpoint, sub),
		} {
			if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
				return nil, xe.Wrap(err)
			}
		}
	}

	apiKey, err := apiKeyOf(ctx, gc)
	if err != nil {
		return nil, err
	}

	sessionId, err := newDMSession(ctx, gc, tale)
	if err != nil {
		return nil, err
	}

	mounter := env.Mounter(apiKey)
	type mount struct {
		kind girderfs.Kind
		sub  string
		id   string
	}
	mounts := []mount{}
	if sessionId != "" {
		mounts = append(mounts, mount{girderfs.Data, volume.Data, sessionId})
	}
	mounts = append(
		mounts,
		mount{girderfs.Home, volume.Home, home.ID},
		mount{girderfs.Workspace, volume.Workspace, tale.ID},
	)
	for _, m := range mounts {
		dest := filepath.Join(mountpoint, m.sub)
		logger.Printf("mounting %s onto %s", m.kind, dest)
		if err := mounter.Mount(ctx, m.kind, dest, m.id); err != nil {
			return nil, xe.WrapWithNote(fmt.Sprintf("cannot mount %s", dest), err)
		}
	}

	return &girder.ContainerInfo{
		NodeID:     node,
		MountPoint: mountpoint,
		VolumeName: vol.Name(),
		SessionID:  sessionId,
		InstanceID: inst.ID,
	}, nil
}

func apiKeyOf(ctx context.Context, gc girder.Client) (string, error) {
	keys, err := gc.ListApiKeys(ctx)
	if err != nil {
		return "", err
	}
	found := ""
	for _, k := range keys {
		if k.Name == ApiKeyName && k.Active {
			found = k.Key
		}
	}
	if found != "" {
		return found, nil
	}
	k, err := gc.CreateApiKey(ctx, ApiKeyName, true)
	if err != nil {
		return "", err
	}
	return k.Key, nil
}

// newDMSession starts a data-management session for the tale.
//
// It returns an empty id when the tale has no data.
func newDMSession(ctx context.Context, gc girder.Client, tale girder.Tale) (string, error) {
	var req girder.SessionRequest
	switch {
	case tale.HasDataSet():
		req = girder.SessionRequest{TaleID: tale.ID}
	case tale.FolderID != "":
		folders, err := gc.ListFolders(ctx, girder.ParentFolder, tale.FolderID, "")
		if err != nil {
			return "", err
		}
		items, err := gc.ListItems(ctx, tale.FolderID, "")
		if err != nil {
			return "", err
		}
		ds := make([]girder.DataSetEntry, 0, len(folders)+len(items))
		for _, f := range folders {
			ds = append(ds, girder.DataSetEntry{ItemID: f.ID, MountPath: "/" + f.Name})
		}
		for _, i := range items {
			ds = append(ds, girder.DataSetEntry{ItemID: i.ID, MountPath: "/" + i.Name})
		}
		req = girder.SessionRequest{DataSet: ds}
	default:
		return "", nil
	}

	sess, err := gc.CreateSession(ctx, req)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// RemoveVolume unmounts girderfs of an instance, and removes its volume.
//
// Failures are logged, not returned.
func RemoveVolume(ctx context.Context, env *Env, call Call, args InstanceArgs) (any, error) {
	gc := call.Girder
	logger := call.Logger

	inst, err := gc.GetInstance(ctx, args.InstanceID)
	if err != nil {
		return nil, err
	}
	ci := inst.ContainerInfo
	if ci == nil {
		return nil, nil
	}

	mounter := env.Mounter("")
	for _, sub := range volume.Mountpoints {
		dest := filepath.Join(ci.MountPoint, sub)
		if err := mounter.Unmount(ctx, dest); err != nil {
			logger.Printf("cannot unmount %s: %s", dest, err)
		}
	}

	sessionId := inst.SessionID
	if sessionId == "" {
		sessionId = ci.SessionID
	}
	if sessionId != "" {
		if err := gc.DeleteSession(ctx, sessionId); err != nil {
			logger.Printf("unable to remove session %s: %s", sessionId, err)
		}
	}

	if err := volume.Remove(ctx, env.Cluster, ci.VolumeName); err != nil {
		if k8serrors.AsMissingError(err) {
			logger.Printf("unable to find volume %s", ci.VolumeName)
		} else {
			logger.Printf("unable to remove volume %s: %s", ci.VolumeName, err)
		}
	}
	return nil, nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/whole-tale/gwvolman/cmd/gwvolman/hook"
	"github.com/whole-tale/gwvolman/pkg/buildtime"
	gwvconf "github.com/whole-tale/gwvolman/pkg/configs/gwvolman"
	cfg_hook "github.com/whole-tale/gwvolman/pkg/configs/hook"
	kpg "github.com/whole-tale/gwvolman/pkg/db/postgres"
	"github.com/whole-tale/gwvolman/pkg/deployment"
	"github.com/whole-tale/gwvolman/pkg/girder"
	"github.com/whole-tale/gwvolman/pkg/images/registry"
	"github.com/whole-tale/gwvolman/pkg/kubeutil"
	"github.com/whole-tale/gwvolman/pkg/loop/recurring"
	"github.com/whole-tale/gwvolman/pkg/tasks"
	"github.com/whole-tale/gwvolman/pkg/utils/args"
	"github.com/whole-tale/gwvolman/pkg/utils/filewatch"
	"github.com/whole-tale/gwvolman/pkg/utils/try"
	k8s "github.com/whole-tale/gwvolman/pkg/workloads/k8s"
)

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()

	pconfig := flag.String(
		"config", os.Getenv("GWVOLMAN_CONFIG"), "path to config file",
	)
	pSchemaRepo := flag.String(
		"schema-repo", os.Getenv("GWVOLMAN_SCHEMA"), "schema repository path",
	)
	phooks := flag.String(
		"hooks", os.Getenv("GWVOLMAN_HOOK_CONFIG"), "path to hook config file",
	)
	pkubeconfig := flag.String(
		"kubeconfig", "", "(optional) path to kubeconfig file",
	)
	loopType := args.Default(AsLoopType, Jobs.String())
	flag.Var(loopType, "type", "loop type (jobs|reclaim)")
	policy := args.Default(recurring.ParsePolicy, "forever:1s")
	flag.Var(
		policy, "policy",
		`loop policy (syntax: forever[:COOLDOWN]|backlog).`+
			` "forever[:COOLDOWN]" = run until error, waiting COOLDOWN when idle.`+
			` "backlog" = run until error or nothing to do.`,
	)
	pversion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *pversion {
		logger.Println(buildtime.VersionString())
		return
	}

	{
		// restart when config or hooks are changed
		wctx, wcancel, err := filewatch.UntilModifyContext(ctx, *pconfig, *phooks)
		if err != nil {
			logger.Fatal(err)
		}
		defer wcancel()
		ctx = wctx
	}

	conf := try.To(gwvconf.LoadConfig(*pconfig)).OrFatal(logger)
	clientset := try.To(kubeutil.Connect(*pkubeconfig)).OrFatal(logger)
	cluster := k8s.AttachCluster(
		k8s.WrapK8sClient(clientset), conf.Cluster().Namespace(), conf.Cluster().Domain(),
	)

	db := try.To(kpg.New(
		ctx, conf.Database(), kpg.WithSchemaRepository(*pSchemaRepo),
	)).OrFatal(logger)
	defer db.Close()
	{
		sctx, scancel := db.Schema().Context(ctx)
		defer scancel()
		ctx = sctx
	}

	hooks := cfg_hook.Config{}
	if *phooks != "" {
		hooks = try.To(cfg_hook.Load(*phooks)).OrFatal(logger)
	}

	dpl := deployment.New(cluster, deployment.Names{
		Dashboard: conf.Cluster().Deployment().Dashboard(),
		Girder:    conf.Cluster().Deployment().Girder(),
		Registry:  conf.Cluster().Deployment().Registry(),
	})
	reg := registry.New(
		try.To(registryHost(ctx, conf, dpl)).OrFatal(logger),
		conf.Registry().User(), conf.Registry().Password(), conf.Registry().Insecure(),
	)

	name := conf.Worker().Name()
	if name == "" {
		name = try.To(os.Hostname()).OrFatal(logger)
	}

	apiUrl := conf.Girder().ApiUrl()
	worker := Worker{
		Name: name,
		Env:  tasks.NewEnv(conf, cluster, dpl, reg),
		Jobs: db.Job(),
		Girder: func(token string) girder.Client {
			return girder.New(apiUrl, token, nil)
		},
	}

	logger.Printf(
		`gwvolman %s: start loop "%s" /w policy "%s" as %s`,
		buildtime.VersionString(), loopType.Value(), policy.Value(), name,
	)

	err := StartLoop(ctx, logger, worker, LoopManifest{
		Type:   loopType.Value(),
		Policy: recurring.UntilError(policy.Value()),
		Hooks:  hook.Build(hooks.Job),
	})
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Fatal(err, " (loop context is cancelled by: ", context.Cause(ctx), ")")
	}
	logger.Fatal(err)
}

// registryHost is the configured registry host, or the one discovered from the deployment.
func registryHost(ctx context.Context, conf *gwvconf.Config, dpl deployment.Deployment) (string, error) {
	if h := conf.Registry().Host(); h != "" {
		return h, nil
	}
	u, err := dpl.RegistryURL(ctx)
	if err != nil {
		return "", err
	}
	return registry.HostOf(u)
}

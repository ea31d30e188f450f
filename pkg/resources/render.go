package resources

import (
	"fmt"

	"github.com/ebi-gdp/vattid/pkg/config"
	"github.com/ebi-gdp/vattid/pkg/messages"
)

// ChartValues is the values document handed to `helm install`. Field
// naming follows the chart's own camelCase convention (out of scope: the
// chart template and its schema; this is only the shape the core must
// produce per spec.md §4.2).
type ChartValues struct {
	Secrets   ChartSecrets        `yaml:"secrets"`
	Nextflow  ChartNextflowValues `yaml:"nxf"`
	Job       ChartJobValues      `yaml:"job"`
}

type ChartSecrets struct {
	GlobusDomain       string `yaml:"globusDomain"`
	GlobusClientID     string `yaml:"globusClientId"`
	GlobusClientSecret string `yaml:"globusClientSecret"`
	GlobusScopes       string `yaml:"globusScopes"`
	NotifyURL          string `yaml:"notifyUrl"`
	NotifyToken        string `yaml:"notifyToken"`
	TowerToken         string `yaml:"towerToken"`
	TowerWorkspace     string `yaml:"towerWorkspace"`
	SecretID           string `yaml:"secretId"`
	SecretIDVersion    string `yaml:"secretIdVersion"`
}

type ChartNextflowValues struct {
	WorkBucketPath string `yaml:"workBucketPath"`
	GCPProject     string `yaml:"gcpProject"`
	Location       string `yaml:"location"`
}

type ChartJobValues struct {
	MinOverlap    float64                `yaml:"minOverlap"`
	TargetBuild   messages.GenomeBuild   `yaml:"targetBuild"`
	Format        messages.SamplesheetFormat `yaml:"format"`
	Outdir        string                 `yaml:"outdir"`
	TargetGenomes []messages.TargetGenome `yaml:"targetGenomes"`
}

// Render builds the values document for a job. Every target-genome path is
// rewritten to gs://{work_bucket}/data/{original} before being included,
// per spec.md §4.2; bucket paths are rooted under /work, /data, /results.
func Render(req messages.JobRequest, workBucket, resultsBucket string, settings *config.Settings) (any, error) {
	genomes := make([]messages.TargetGenome, len(req.PipelineParam.TargetGenomes))
	for i, g := range req.PipelineParam.TargetGenomes {
		rewritten := g
		rewritten.Geno = rewriteDataPath(workBucket, g.Geno)
		rewritten.Pheno = rewriteDataPath(workBucket, g.Pheno)
		rewritten.Variants = rewriteDataPath(workBucket, g.Variants)
		genomes[i] = rewritten
	}

	return ChartValues{
		Secrets: ChartSecrets{
			GlobusDomain:       settings.GlobusDomain,
			GlobusClientID:     settings.GlobusClientID,
			GlobusClientSecret: settings.GlobusClientSecret,
			GlobusScopes:       settings.GlobusScopes,
			NotifyURL:          settings.NotifyURL,
			NotifyToken:        settings.NotifyToken,
			TowerToken:         settings.PlatformToken,
			TowerWorkspace:     settings.PlatformWorkspace,
			SecretID:           req.SecretKeyDetails.UppercaseID(),
			SecretIDVersion:    req.SecretKeyDetails.SecretIDVersion,
		},
		Nextflow: ChartNextflowValues{
			WorkBucketPath: fmt.Sprintf("gs://%s/work", workBucket),
			GCPProject:     settings.GCPProject,
			Location:       settings.GCPLocation,
		},
		Job: ChartJobValues{
			MinOverlap:    settings.MinOverlap,
			TargetBuild:   req.PipelineParam.NxfParamsFile.TargetBuild,
			Format:        req.PipelineParam.NxfParamsFile.Format,
			Outdir:        fmt.Sprintf("gs://%s/results", resultsBucket),
			TargetGenomes: genomes,
		},
	}, nil
}

// rewriteDataPath rewrites a path to live under the work bucket's /data
// prefix, per spec.md §4.2: gs://{work_bucket}/data/{original}.
func rewriteDataPath(workBucket, original string) string {
	return fmt.Sprintf("gs://%s/data/%s", workBucket, original)
}

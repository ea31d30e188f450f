// Package messages defines the inbound launch-topic schema (the Job-Request
// message) and its validation rules.
package messages

import (
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// TargetFormat is the file layout a TargetGenome's three paths are in.
type TargetFormat string

const (
	FormatPfile TargetFormat = "pfile"
	FormatBfile TargetFormat = "bfile"
	FormatVCF   TargetFormat = "vcf"
)

// GlobusFile is one file the file handler must stage from Globus.
type GlobusFile struct {
	Filename string `json:"filename" validate:"required"`
	Size     int64  `json:"size" validate:"required,gt=0"`
}

// validateC4GH rejects a GlobusFile whose name isn't crypt4gh-encrypted.
func (f GlobusFile) validateC4GH() error {
	if !strings.HasSuffix(f.Filename, ".c4gh") {
		return fmt.Errorf("filename %q must end with .c4gh", f.Filename)
	}
	return nil
}

// GlobusDetails describes where the file handler should stage files from.
type GlobusDetails struct {
	DirPathOnGuestCollection string       `json:"dir_path_on_guest_collection" validate:"required"`
	Files                    []GlobusFile `json:"files" validate:"required,min=1,dive"`
}

// TargetGenome is one genome contributed to the calculation, possibly split
// by chromosome.
type TargetGenome struct {
	Sampleset        string       `json:"sampleset" validate:"required"`
	Chrom            *string      `json:"chrom"`
	VCFImportDosage  bool         `json:"vcf_import_dosage"`
	Geno             string       `json:"geno" validate:"required"`
	Pheno            string       `json:"pheno" validate:"required"`
	Variants         string       `json:"variants" validate:"required"`
	Format           TargetFormat `json:"format" validate:"required,oneof=pfile bfile vcf"`
}

// Validate runs the cross-field suffix rules that struct tags can't
// express: the sampleset naming rule, the per-file suffix rules, and the
// rule tying the three file suffixes to the declared format.
func (g TargetGenome) Validate() error {
	if strings.Contains(g.Sampleset, "_") {
		return fmt.Errorf("sampleset %q can't contain _", g.Sampleset)
	}
	if g.Sampleset == "reference" {
		return fmt.Errorf("sampleset can't be named reference")
	}

	for _, p := range []string{g.Geno, g.Pheno, g.Variants} {
		if strings.HasSuffix(p, ".c4gh") {
			return fmt.Errorf("calculation workflow can't handle encrypted file %q", p)
		}
	}

	if err := checkGenoSuffix(g.Geno); err != nil {
		return err
	}
	if err := checkVariantSuffix(g.Variants); err != nil {
		return err
	}
	if err := checkPhenoSuffix(g.Pheno); err != nil {
		return err
	}

	return g.checkFormatAndFilenames()
}

func suffixSet(p string) map[string]bool {
	set := map[string]bool{}
	base := path.Base(p)
	for {
		ext := path.Ext(base)
		if ext == "" {
			break
		}
		set[ext] = true
		base = strings.TrimSuffix(base, ext)
	}
	return set
}

func checkGenoSuffix(p string) error {
	suffixes := suffixSet(p)
	switch {
	case strings.HasSuffix(p, ".pgen"), strings.HasSuffix(p, ".bed"):
		return nil
	case strings.HasSuffix(p, ".gz") && suffixes[".vcf"]:
		return nil
	default:
		return fmt.Errorf("genotype file %q is not a supported format", p)
	}
}

func checkVariantSuffix(p string) error {
	suffixes := suffixSet(p)
	switch {
	case strings.HasSuffix(p, ".pvar"), strings.HasSuffix(p, ".bim"):
		return nil
	case strings.HasSuffix(p, ".zst") && (suffixes[".pvar"] || suffixes[".bim"]):
		return nil
	case strings.HasSuffix(p, ".gz") && (suffixes[".bim"] || suffixes[".vcf"]):
		return nil
	default:
		return fmt.Errorf("variant information file %q is not a supported format", p)
	}
}

func checkPhenoSuffix(p string) error {
	suffixes := suffixSet(p)
	switch {
	case strings.HasSuffix(p, ".psam"), strings.HasSuffix(p, ".fam"):
		return nil
	case strings.HasSuffix(p, ".gz") && suffixes[".vcf"]:
		return nil
	default:
		return fmt.Errorf("phenotype information file %q is not a supported format", p)
	}
}

// checkFormatAndFilenames checks the declared format aligns with the union
// of suffixes across all three paths.
func (g TargetGenome) checkFormatAndFilenames() error {
	extensions := map[string]bool{}
	for k := range suffixSet(g.Geno) {
		extensions[k] = true
	}
	for k := range suffixSet(g.Pheno) {
		extensions[k] = true
	}
	for k := range suffixSet(g.Variants) {
		extensions[k] = true
	}

	matches := func(want ...string) bool {
		if len(extensions) != len(want) {
			return false
		}
		for _, w := range want {
			if !extensions[w] {
				return false
			}
		}
		return true
	}

	switch g.Format {
	case FormatPfile:
		if !matches(".pvar", ".psam", ".pgen") && !matches(".pvar", ".zst", ".psam", ".pgen") {
			return fmt.Errorf("invalid combination of format %q and file paths", g.Format)
		}
	case FormatBfile:
		if !matches(".bed", ".bim", ".fam") && !matches(".bed", ".bim", ".zst", ".fam") {
			return fmt.Errorf("invalid combination of format %q and file paths", g.Format)
		}
	case FormatVCF:
		if !matches(".vcf") && !matches(".vcf", ".gz") {
			return fmt.Errorf("invalid combination of format %q and file paths", g.Format)
		}
	default:
		return fmt.Errorf("invalid format %q", g.Format)
	}
	return nil
}

// GenomeBuild is the reference build the target genomes were called
// against.
type GenomeBuild string

const (
	BuildGRCh37 GenomeBuild = "GRCh37"
	BuildGRCh38 GenomeBuild = "GRCh38"
)

// SamplesheetFormat is the format of the samplesheet handed to the workflow.
type SamplesheetFormat string

const SamplesheetJSON SamplesheetFormat = "json"

// PGSParams are the calculation workflow's runtime parameters.
type PGSParams struct {
	PGSID        *string           `json:"pgs_id,omitempty"`
	PGPID        *string           `json:"pgp_id,omitempty"`
	TraitEFO     *string           `json:"trait_efo,omitempty"`
	TargetBuild  GenomeBuild       `json:"target_build" validate:"required,oneof=GRCh37 GRCh38"`
	Format       SamplesheetFormat `json:"format"`
}

// Validate checks that at least one of PGSID, PGPID, TraitEFO is set.
func (p PGSParams) Validate() error {
	if blank(p.PGSID) && blank(p.PGPID) && blank(p.TraitEFO) {
		return fmt.Errorf("missing all of pgs_id, pgp_id, trait_efo")
	}
	return nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// SecretKeyDetails is the crypt4gh secret key metadata used to call the key
// handler service.
type SecretKeyDetails struct {
	SecretID        string `json:"secret_id" validate:"required"`
	SecretIDVersion string `json:"secret_id_version" validate:"required"`
}

// Validate checks SecretID is a UUIDv4.
func (s SecretKeyDetails) Validate() error {
	id, err := uuid.Parse(s.SecretID)
	if err != nil {
		return fmt.Errorf("secret_id %q is not a UUID: %w", s.SecretID, err)
	}
	if id.Version() != 4 {
		return fmt.Errorf("secret_id %q is not a UUIDv4", s.SecretID)
	}
	return nil
}

// UppercaseID returns the secret id formatted the way chart rendering
// requires it.
func (s SecretKeyDetails) UppercaseID() string {
	return strings.ToUpper(s.SecretID)
}

// PGSJobParams are the pipeline_param block of a JobRequest.
type PGSJobParams struct {
	ID             string         `json:"id" validate:"required"`
	TargetGenomes  []TargetGenome `json:"target_genomes" validate:"required,min=1,dive"`
	NxfParamsFile  PGSParams      `json:"nxf_params_file" validate:"required"`
}

// JobRequest is the inbound launch-topic message (C6's validation target).
type JobRequest struct {
	GlobusDetails    GlobusDetails    `json:"globus_details" validate:"required"`
	PipelineParam    PGSJobParams     `json:"pipeline_param" validate:"required"`
	SecretKeyDetails SecretKeyDetails `json:"secret_key_details" validate:"required"`
}

const idPrefix = "INTP"

// Validate runs struct-tag validation plus the cross-field checks the tags
// can't express (file suffix/format pairing, sampleset naming, UUIDv4
// version, the id prefix, the at-least-one-of PGS identifier rule, and the
// per-file .c4gh requirement).
func (r JobRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !strings.HasPrefix(r.PipelineParam.ID, idPrefix) {
		return fmt.Errorf("pipeline_param.id %q must start with %s", r.PipelineParam.ID, idPrefix)
	}
	for _, f := range r.GlobusDetails.Files {
		if err := f.validateC4GH(); err != nil {
			return err
		}
	}
	if err := r.PipelineParam.NxfParamsFile.Validate(); err != nil {
		return err
	}
	for _, g := range r.PipelineParam.TargetGenomes {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("target genome %q: %w", g.Sampleset, err)
		}
	}
	if err := r.SecretKeyDetails.Validate(); err != nil {
		return err
	}
	return nil
}

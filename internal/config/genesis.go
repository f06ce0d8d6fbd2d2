// Package config loads ledger configuration: the genesis file (CUE,
// validated against an embedded schema) and runtime settings from the
// environment.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/community"
	"github.com/roach88/ledgerd/internal/engine"
	"github.com/roach88/ledgerd/internal/social"
)

//go:embed schema.cue
var schemaSource []byte

// Error codes for genesis loading.
const (
	ErrCodeRead     = "C001" // genesis file unreadable
	ErrCodeCompile  = "C002" // CUE syntax error
	ErrCodeSchema   = "C003" // schema violation
	ErrCodeDecode   = "C004" // decode into Go types failed
	ErrCodeSemantic = "C005" // well-typed but unusable
)

// Error reports a genesis that could not be loaded.
type Error struct {
	Code    string
	File    string
	Message string
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type genesisFile struct {
	Owner            string            `json:"owner"`
	TimeUnitsPerHour uint64            `json:"time_units_per_hour"`
	Social           socialFile        `json:"social"`
	Community        communityFile     `json:"community"`
	Endowments       map[string]uint64 `json:"endowments"`
}

type socialFile struct {
	PostDeposit   uint64 `json:"post_deposit"`
	PostReward    uint64 `json:"post_reward"`
	LikeReward    uint64 `json:"like_reward"`
	MaxPostLength uint32 `json:"max_post_length"`
}

type communityFile struct {
	GroupDeposit              uint64   `json:"group_deposit"`
	MaxGroupMembers           uint32   `json:"max_group_members"`
	MaxGroupNameLength        uint32   `json:"max_group_name_length"`
	MaxGroupDescriptionLength uint32   `json:"max_group_description_length"`
	MaxMessageLength          uint32   `json:"max_message_length"`
	Moderators                []string `json:"moderators"`
}

// LoadGenesis reads and validates a CUE genesis file.
func LoadGenesis(path string) (engine.Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Genesis{}, &Error{Code: ErrCodeRead, File: path, Message: err.Error()}
	}
	return ParseGenesis(path, data)
}

// ParseGenesis validates CUE source against the genesis schema, fills
// defaults and converts the result. filename is used in error messages.
func ParseGenesis(filename string, src []byte) (engine.Genesis, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return engine.Genesis{}, fmt.Errorf("compile embedded schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Genesis"))

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return engine.Genesis{}, &Error{Code: ErrCodeCompile, File: filename, Message: details(err)}
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return engine.Genesis{}, &Error{Code: ErrCodeSchema, File: filename, Message: details(err)}
	}

	var f genesisFile
	if err := v.Decode(&f); err != nil {
		return engine.Genesis{}, &Error{Code: ErrCodeDecode, File: filename, Message: details(err)}
	}

	g := f.toGenesis()
	if err := g.Validate(); err != nil {
		return engine.Genesis{}, &Error{Code: ErrCodeSemantic, File: filename, Message: err.Error()}
	}
	return g, nil
}

func (f genesisFile) toGenesis() engine.Genesis {
	mods := make([]chain.AccountID, len(f.Community.Moderators))
	for i, m := range f.Community.Moderators {
		mods[i] = chain.AccountID(m)
	}
	endow := make(map[chain.AccountID]uint64, len(f.Endowments))
	for acct, amount := range f.Endowments {
		endow[chain.AccountID(acct)] = amount
	}
	return engine.Genesis{
		Owner:            chain.AccountID(f.Owner),
		TimeUnitsPerHour: f.TimeUnitsPerHour,
		Social: social.Params{
			PostDeposit:   f.Social.PostDeposit,
			PostReward:    f.Social.PostReward,
			LikeReward:    f.Social.LikeReward,
			MaxPostLength: f.Social.MaxPostLength,
		},
		Community: community.Params{
			GroupDeposit:              f.Community.GroupDeposit,
			MaxGroupMembers:           f.Community.MaxGroupMembers,
			MaxGroupNameLength:        f.Community.MaxGroupNameLength,
			MaxGroupDescriptionLength: f.Community.MaxGroupDescriptionLength,
			MaxMessageLength:          f.Community.MaxMessageLength,
			Moderators:                mods,
		},
		Endowments: endow,
	}
}

// details flattens a CUE error list into one message with positions.
func details(err error) string {
	return cueerrors.Details(err, nil)
}

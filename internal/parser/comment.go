package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
)

type commentField struct {
	name    string
	aliases []string
	assign  func(m *models.CommentMetadata, value string) error
}

// commentLayout is positional: line N must use one of the aliases of entry N.
var commentLayout = []commentField{
	{
		name:    "users",
		aliases: []string{"user", "User", "users", "Users"},
		assign:  func(m *models.CommentMetadata, v string) error { m.Users = v; return nil },
	},
	{
		name:    "substrate",
		aliases: []string{"substrate", "Substrate", "substrates", "Substrates"},
		assign:  func(m *models.CommentMetadata, v string) error { m.Substrate = v; return nil },
	},
	{
		name:    "adsorbate",
		aliases: []string{"adsorbate", "Adsorbate", "adsorbates", "Adsorbates", "absorbate"},
		assign:  func(m *models.CommentMetadata, v string) error { m.Adsorbate = v; return nil },
	},
	{
		name:    "prep",
		aliases: []string{"prep", "Prep", "preps", "Preps"},
		assign:  func(m *models.CommentMetadata, v string) error { m.Prep = v; return nil },
	},
	{
		name:    "notebook",
		aliases: []string{"notebook", "Notebook", "notebooks", "Notebooks"},
		assign: func(m *models.CommentMetadata, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("notebook value %q is not an integer: %w", v, err)
			}
			m.Notebook = n
			return nil
		},
	},
	{
		name:    "notes",
		aliases: []string{"note", "Note", "notes", "Notes"},
		assign:  func(m *models.CommentMetadata, v string) error { m.Notes = v; return nil },
	},
}

// ParseComment reads the six-line "key: value" block from a creation comment.
// A comment without line breaks carries no metadata and yields an unset record.
func ParseComment(comment string, fileName string) (models.CommentMetadata, error) {
	if !strings.Contains(comment, "\n") {
		return models.CommentMetadata{}, nil
	}

	lines := strings.Split(strings.ReplaceAll(comment, "\r\n", "\n"), "\n")
	if len(lines) != len(commentLayout) {
		return models.CommentMetadata{}, formatError(fileName, fmt.Sprintf("expected %d lines, found %d", len(commentLayout), len(lines)))
	}

	var metadata models.CommentMetadata
	for i, field := range commentLayout {
		key, value, ok := strings.Cut(lines[i], ":")
		if !ok {
			return models.CommentMetadata{}, formatError(fileName, fmt.Sprintf("line %d has no ':' separator", i+1))
		}
		if !hasAlias(field.aliases, key) {
			return models.CommentMetadata{}, formatError(fileName, fmt.Sprintf("line %d key %q is not an accepted spelling of %q", i+1, key, field.name))
		}
		if err := field.assign(&metadata, strings.TrimPrefix(value, " ")); err != nil {
			return models.CommentMetadata{}, &models.AppError{Kind: models.KindParse, FileName: fileName, Message: "creation comment does not match expected format", Err: err}
		}
	}
	metadata.Present = true

	return metadata, nil
}

func hasAlias(aliases []string, key string) bool {
	for _, alias := range aliases {
		if alias == key {
			return true
		}
	}
	return false
}

func formatError(fileName, detail string) error {
	return &models.AppError{
		Kind:     models.KindParse,
		FileName: fileName,
		Message:  fmt.Sprintf("creation comment does not match expected format: %s", detail),
	}
}

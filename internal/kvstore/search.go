package kvstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"kvedit/internal/logging"
)

// SearchResult is the decoded body of a oneshot search job.
type SearchResult struct {
	Messages []Message `json:"messages"`
	Results  []Record  `json:"results"`
}

// ErrSearchFailed marks searches whose response carried ERROR messages.
var ErrSearchFailed = errors.New("search failed")

// RunSearch executes a oneshot search job and waits for its results.
func (c *Client) RunSearch(ctx context.Context, search string) (SearchResult, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return SearchResult{}, errors.New("kvstore: search is required")
	}
	if !strings.HasPrefix(search, "|") && !strings.HasPrefix(search, "search ") {
		search = "search " + search
	}

	form := url.Values{}
	form.Set("search", search)
	form.Set("exec_mode", "oneshot")
	form.Set("output_mode", "json")

	var result SearchResult
	if err := c.doForm(ctx, c.endpoint(nil, "search", "jobs"), form, &result); err != nil {
		return SearchResult{}, err
	}
	if text := messageTexts(result.Messages, "ERROR"); text != "" {
		return result, fmt.Errorf("%w: %s", ErrSearchFailed, text)
	}
	for _, msg := range result.Messages {
		if strings.EqualFold(msg.Type, "WARN") {
			c.logger.Warn("search warning",
				logging.String("search", search),
				logging.String("message", msg.Text),
				logging.String(logging.FieldEventType, "search_warning"),
			)
		}
	}
	return result, nil
}

// BackupLookup names the CSV lookup a backup of lookup is written to.
func BackupLookup(lookup string) string {
	return lookup + ".bak.csv"
}

// BackupSearch copies the lookup into its backup CSV.
func BackupSearch(lookup string) string {
	return fmt.Sprintf("|inputlookup %s |outputlookup %s", lookup, BackupLookup(lookup))
}

// RestoreSearch copies the backup CSV back into the lookup.
func RestoreSearch(lookup string) string {
	return fmt.Sprintf("|inputlookup %s |outputlookup %s", BackupLookup(lookup), lookup)
}

// Backup writes the collection behind lookup to its backup CSV.
func (c *Client) Backup(ctx context.Context, lookup string) error {
	if strings.TrimSpace(lookup) == "" {
		return errors.New("kvstore: lookup is required for backup")
	}
	_, err := c.RunSearch(ctx, BackupSearch(lookup))
	return err
}

// Restore replaces the collection behind lookup with its backup CSV.
func (c *Client) Restore(ctx context.Context, lookup string) error {
	if strings.TrimSpace(lookup) == "" {
		return errors.New("kvstore: lookup is required for restore")
	}
	_, err := c.RunSearch(ctx, RestoreSearch(lookup))
	return err
}

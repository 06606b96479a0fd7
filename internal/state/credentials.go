package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quartetops/quartet/pkg/models"
)

// PutCredential upserts a credential for its (provider, user) key.
// When inKeyring is true the token columns are stored empty; the tokens
// live in the OS keychain and only the metadata is persisted here.
func (db *DB) PutCredential(cred *models.UserCredential, inKeyring bool) error {
	metadata, err := json.Marshal(cred.Metadata)
	if err != nil {
		return fmt.Errorf("marshal credential metadata: %w", err)
	}

	access, refresh := cred.AccessToken, cred.RefreshToken
	if inKeyring {
		access, refresh = "", ""
	}

	var expires any
	if !cred.ExpiresAt.IsZero() {
		expires = formatTime(cred.ExpiresAt)
	}

	updated := cred.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = db.Exec(`
		INSERT INTO credentials (provider, user_id, access_token, refresh_token, expires_at, metadata, in_keyring, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			metadata = excluded.metadata,
			in_keyring = excluded.in_keyring,
			updated_at = excluded.updated_at
	`, string(cred.Provider), cred.UserID, access, refresh, expires, string(metadata), boolToInt(inKeyring), formatTime(updated))
	if err != nil {
		return fmt.Errorf("put credential %s: %w", cred.Key(), err)
	}
	return nil
}

// GetCredential retrieves the credential for a (provider, user) key.
// Returns nil, nil when no credential is stored. The second return reports
// whether the tokens live in the OS keychain.
func (db *DB) GetCredential(provider models.Provider, userID string) (*models.UserCredential, bool, error) {
	row := db.QueryRow(`
		SELECT access_token, refresh_token, expires_at, metadata, in_keyring, updated_at
		FROM credentials WHERE provider = ? AND user_id = ?
	`, string(provider), userID)

	var (
		access, refresh, metadata string
		expires                   sql.NullString
		inKeyring                 int
		updated                   string
	)
	if err := row.Scan(&access, &refresh, &expires, &metadata, &inKeyring, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get credential %s/%s: %w", provider, userID, err)
	}

	cred := &models.UserCredential{
		Provider:     provider,
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
	}

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &cred.Metadata); err != nil {
			return nil, false, fmt.Errorf("unmarshal credential metadata: %w", err)
		}
	}

	expiresAt, err := nullableTime(expires)
	if err != nil {
		return nil, false, fmt.Errorf("parse credential expiry: %w", err)
	}
	cred.ExpiresAt = expiresAt

	if updatedAt, err := parseTime(updated); err == nil {
		cred.UpdatedAt = updatedAt
	}

	return cred, inKeyring == 1, nil
}

// DeleteCredential removes a credential for a (provider, user) key.
// Deleting a missing credential is not an error.
func (db *DB) DeleteCredential(provider models.Provider, userID string) error {
	_, err := db.Exec(`DELETE FROM credentials WHERE provider = ? AND user_id = ?`, string(provider), userID)
	if err != nil {
		return fmt.Errorf("delete credential %s/%s: %w", provider, userID, err)
	}
	return nil
}

// ListCredentials returns the stored (provider, user) keys and expiry info
// without token material, for status display.
func (db *DB) ListCredentials() ([]CredentialInfo, error) {
	rows, err := db.Query(`
		SELECT provider, user_id, expires_at, metadata, updated_at
		FROM credentials ORDER BY provider, user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var infos []CredentialInfo
	for rows.Next() {
		var (
			info     CredentialInfo
			provider string
			expires  sql.NullString
			metadata string
			updated  string
		)
		if err := rows.Scan(&provider, &info.UserID, &expires, &metadata, &updated); err != nil {
			return nil, fmt.Errorf("scan credential row: %w", err)
		}
		info.Provider = models.Provider(provider)

		if expiresAt, err := nullableTime(expires); err == nil {
			info.ExpiresAt = expiresAt
		}
		if updatedAt, err := parseTime(updated); err == nil {
			info.UpdatedAt = updatedAt
		}

		var meta map[string]string
		if err := json.Unmarshal([]byte(metadata), &meta); err == nil {
			info.CloudID = meta[models.MetadataCloudID]
		}

		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// CredentialInfo is a token-free view of a stored credential.
type CredentialInfo struct {
	Provider  models.Provider
	UserID    string
	CloudID   string
	ExpiresAt time.Time
	UpdatedAt time.Time
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

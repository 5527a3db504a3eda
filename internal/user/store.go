package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUserNotFound は指定されたユーザーがストアに存在しない場合のエラー。
	ErrUserNotFound = errors.New("ユーザーが見つかりません")
	// ErrEmailAlreadyExists は同じメールアドレスのユーザーが既に存在する場合のエラー。
	ErrEmailAlreadyExists = errors.New("このメールアドレスは既に登録されています")
)

// User はストアに保存されるユーザーレコード。
// IDは登録時に割り当てられ、以降変更されない。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Email はユーザーのメールアドレス。ストア全体で一意。
	Email string
	// Name はユーザーの表示名。
	Name string
	// EncryptedPwd はパスワードのbcryptハッシュ。平文は保存しない。
	EncryptedPwd string
	// CreatedAt は登録日時。
	CreatedAt string
}

// Store はSQLiteによるユーザーレコードの永続化層。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create はユーザーレコードを保存する。
// 同じメールアドレスが既に存在する場合はErrEmailAlreadyExistsを返す。
func (s *Store) Create(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, encrypted_pwd) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.EncryptedPwd,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return nil
}

// GetByEmail はメールアドレスでユーザーを検索する。
// 存在しない場合はErrUserNotFoundを返す。
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, encrypted_pwd, created_at FROM users WHERE email = ?`,
		email,
	)
	return scanUser(row)
}

// GetByID はユーザーIDでユーザーを検索する。
// 存在しない場合はErrUserNotFoundを返す。
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, encrypted_pwd, created_at FROM users WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

// List はすべてのユーザーを登録日時順に返す。
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, name, encrypted_pwd, created_at FROM users ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.EncryptedPwd, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗: %w", err)
	}
	return users, nil
}

// scanUser は1行のクエリ結果をUserに変換する。
func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.EncryptedPwd, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("ユーザー行の読み取りに失敗: %w", err)
	}
	return &u, nil
}

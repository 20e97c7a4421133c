package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"shorturl-engine/internal/model"
)

// Gorm 基于关系型数据库的存储（MySQL / SQLite）
//
// 唯一性依赖 short_code 上的唯一索引，计数使用 access_count = access_count + 1，
// 读改写都包在一个短事务里，返回的记录与写入属于同一个快照。
type Gorm struct {
	db   *gorm.DB
	opts options
}

// NewGorm 创建 GORM 存储，表结构由调用方迁移
func NewGorm(db *gorm.DB, opts ...Option) *Gorm {
	return &Gorm{db: db, opts: buildOptions(opts)}
}

// AutoMigrate 创建或更新 short_urls 表
func (g *Gorm) AutoMigrate(ctx context.Context) error {
	db := g.db.WithContext(ctx)
	if opts := tableOptions(db.Dialector.Name()); opts != "" {
		db = db.Set("gorm:table_options", opts)
	}
	return db.AutoMigrate(&model.ShortURL{})
}

// tableOptions 短码区分大小写，MySQL 默认排序规则不区分，需要建表时指定二进制排序
// 已存在的表不会被修改，需手动执行 ALTER TABLE ... COLLATE utf8mb4_bin
func tableOptions(dialect string) string {
	if dialect == "mysql" {
		return "DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin"
	}
	return ""
}

func (g *Gorm) CreateIfAbsent(ctx context.Context, code, url string) (*model.ShortURL, error) {
	const op = "store.Gorm.CreateIfAbsent"
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	now := g.opts.now()
	rec := &model.ShortURL{
		ShortCode:   code,
		OriginalURL: url,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, unavailable(op, model.ErrConflict)
		}
		return nil, unavailable(op, err)
	}
	return rec, nil
}

func (g *Gorm) Get(ctx context.Context, code string) (*model.ShortURL, error) {
	const op = "store.Gorm.Get"
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	var rec model.ShortURL
	if err := g.db.WithContext(ctx).Where("short_code = ?", code).Take(&rec).Error; err != nil {
		return nil, unavailable(op, notFound(err))
	}
	return &rec, nil
}

func (g *Gorm) UpdateURL(ctx context.Context, code, url string) (*model.ShortURL, error) {
	const op = "store.Gorm.UpdateURL"
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	var rec model.ShortURL
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ShortURL{}).
			Where("short_code = ?", code).
			Updates(map[string]any{"original_url": url, "updated_at": g.opts.now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrNotFound
		}
		return tx.Where("short_code = ?", code).Take(&rec).Error
	})
	if err != nil {
		return nil, unavailable(op, notFound(err))
	}
	return &rec, nil
}

// IncrementAccess 使用 UpdateColumn 跳过钩子，不会触碰 updated_at
func (g *Gorm) IncrementAccess(ctx context.Context, code string) (*model.ShortURL, error) {
	const op = "store.Gorm.IncrementAccess"
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	var rec model.ShortURL
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ShortURL{}).
			Where("short_code = ?", code).
			UpdateColumn("access_count", gorm.Expr("access_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrNotFound
		}
		return tx.Where("short_code = ?", code).Take(&rec).Error
	})
	if err != nil {
		return nil, unavailable(op, notFound(err))
	}
	return &rec, nil
}

// Delete 物理删除，模型没有 DeletedAt，短码可被重新使用
func (g *Gorm) Delete(ctx context.Context, code string) error {
	const op = "store.Gorm.Delete"
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	res := g.db.WithContext(ctx).Where("short_code = ?", code).Delete(&model.ShortURL{})
	if res.Error != nil {
		return unavailable(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return unavailable(op, model.ErrNotFound)
	}
	return nil
}

func (g *Gorm) ListAll(ctx context.Context) ([]*model.ShortURL, error) {
	const op = "store.Gorm.ListAll"
	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()

	var records []*model.ShortURL
	if err := g.db.WithContext(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return nil, unavailable(op, err)
	}
	return records, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrNotFound
	}
	return err
}

// isDuplicateKeyError 优先使用 TranslateError 转换后的错误，
// 未开启转换时退回到驱动错误信息匹配
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

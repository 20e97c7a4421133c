package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options 关系型数据库连接参数
type Options struct {
	Driver       string // mysql | sqlite
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	Charset      string
	Path         string // sqlite 文件路径，":memory:" 表示内存库
	MaxOpenConns int
	MaxIdleConns int
}

// MySQLDSN 构造 MySQL 连接串
//
// clientFoundRows 让 UPDATE 返回匹配行数而不是实际修改行数，
// 否则目标地址未变化的更新会被误判为记录不存在。
func MySQLDSN(opts Options) string {
	charset := opts.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local&clientFoundRows=true",
		opts.User, opts.Password, opts.Host, opts.Port, opts.Name, charset)
}

// Open 按驱动打开数据库并配置连接池
func Open(opts Options, log *zap.SugaredLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "mysql":
		dialector = mysql.Open(MySQLDSN(opts))
	case "sqlite":
		path := opts.Path
		if path == "" {
			path = ":memory:"
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("创建数据目录失败: %w", err)
			}
		}
		dialector = sqlite.Open(path + "?_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %w", err)
	}
	maxOpen := opts.MaxOpenConns
	if opts.Driver == "sqlite" {
		// SQLite 只允许单写
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Infof("数据库连接成功: %s", opts.Driver)
	return db, nil
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

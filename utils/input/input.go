// 输入数据加载
// 功能：从YAML文件或MongoDB加载路口静态描述，数据库加载支持
// 本地BSON缓存，避免重复下载
package input

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v2"

	"github.com/tsinghua-fib-lab/atsc-oss/entity"
	"github.com/tsinghua-fib-lab/atsc-oss/utils/config"
)

var log = logrus.WithField("module", "input")

// yamlSpecs YAML文件的根结构
type yamlSpecs struct {
	Junctions []*entity.JunctionSpec `yaml:"junctions"`
}

// cachedSpecs BSON缓存文件的根结构
type cachedSpecs struct {
	Junctions []*entity.JunctionSpec `bson:"junctions"`
}

// LoadJunctionSpecs 根据配置加载路口静态描述
// 功能：文件配置优先于数据库；数据库加载后写入本地缓存，
// only_cache时跳过数据库直接读缓存
// 参数：in-输入配置，cacheDir-缓存目录（空则禁用缓存）
// 返回：路口静态描述列表或加载错误（致命，进程不应启动）
func LoadJunctionSpecs(in config.Input, cacheDir string) ([]*entity.JunctionSpec, error) {
	if in.Map.File != "" {
		return loadFromFile(in.Map.File)
	}

	useCache := preCheckCache(cacheDir)
	cachePath := filepath.Join(cacheDir, in.Map.GetCachePath())

	if in.Map.OnlyCache {
		if !useCache {
			return nil, fmt.Errorf("input.map.only_cache is set but cache dir is unavailable")
		}
		return loadFromCache(cachePath)
	}
	if in.URI == "" {
		return nil, fmt.Errorf("input.map needs either a file or a mongo uri")
	}

	specs, err := loadFromMongo(in.URI, in.Map.DB, in.Map.Col)
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := saveCache(cachePath, specs); err != nil {
			log.Warnf("failed to write input cache %s: %v", cachePath, err)
		}
	}
	return specs, nil
}

// loadFromFile 从YAML文件加载
// 说明：UnmarshalStrict拒绝未知字段，尽早暴露配置拼写错误
func loadFromFile(path string) ([]*entity.JunctionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read junction file %s: %w", path, err)
	}
	var root yamlSpecs
	if err := yaml.UnmarshalStrict(data, &root); err != nil {
		return nil, fmt.Errorf("parse junction file %s: %w", path, err)
	}
	log.Infof("loaded %d junctions from %s", len(root.Junctions), path)
	return root.Junctions, nil
}

// loadFromMongo 从MongoDB加载全部路口描述
func loadFromMongo(uri, db, col string) ([]*entity.JunctionSpec, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo input: %w", err)
	}
	defer client.Disconnect(context.Background())

	cur, err := client.Database(db).Collection(col).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find junctions in %s.%s: %w", db, col, err)
	}
	var specs []*entity.JunctionSpec
	if err := cur.All(ctx, &specs); err != nil {
		return nil, fmt.Errorf("decode junctions from %s.%s: %w", db, col, err)
	}
	log.Infof("loaded %d junctions from mongo %s.%s", len(specs), db, col)
	return specs, nil
}

// loadFromCache 从本地BSON缓存加载
func loadFromCache(path string) ([]*entity.JunctionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input cache %s: %w", path, err)
	}
	var root cachedSpecs
	if err := bson.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse input cache %s: %w", path, err)
	}
	log.Infof("loaded %d junctions from cache %s", len(root.Junctions), path)
	return root.Junctions, nil
}

// saveCache 把路口描述写入本地BSON缓存
func saveCache(path string, specs []*entity.JunctionSpec) error {
	data, err := bson.Marshal(cachedSpecs{Junctions: specs})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Infof("cached %d junctions to %s", len(specs), path)
	return nil
}

// preCheckCache 预检查缓存目录
// 功能：验证输入缓存目录的有效性，决定是否启用缓存功能
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Info("disable input cache")
		return false
	}
	if stat, err := os.Stat(cacheDir); err == nil && stat.IsDir() {
		log.Infof("enable input cache at %s", cacheDir)
		return true
	}
	log.Errorf("disable input cache because invalid dir %s (not exist or file)", cacheDir)
	return false
}

package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileHandler 新入库 APK 的处理函数
type FileHandler func(ctx context.Context, filePath string) error

// FileWatcher 监听入库目录，新落盘的 APK 自动送入分析
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	watchDir   string
	suffix     string // 文件后缀，如 ".apk"
	handler    FileHandler
	logger     *logrus.Logger
	debounce   time.Duration
	mu         sync.Mutex
	processing map[string]bool
	stopChan   chan struct{}
}

// NewFileWatcher 创建文件监控器
func NewFileWatcher(watchDir, suffix string, handler FileHandler, logger *logrus.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// 确保监控目录存在
	if err := os.MkdirAll(watchDir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}

	if err := watcher.Add(watchDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add watch directory: %w", err)
	}

	if suffix == "" {
		suffix = ".apk"
	}

	fw := &FileWatcher{
		watcher:    watcher,
		watchDir:   watchDir,
		suffix:     strings.ToLower(suffix),
		handler:    handler,
		logger:     logger,
		debounce:   2 * time.Second, // 大文件复制会触发多次写事件
		processing: make(map[string]bool),
		stopChan:   make(chan struct{}),
	}

	logger.WithFields(logrus.Fields{
		"watch_dir": watchDir,
		"suffix":    suffix,
	}).Info("File watcher created")

	return fw, nil
}

// Start 启动监控并处理目录中已存在的文件
// 已分析过的文件由内容哈希去重挡掉，重启不会产生重复结果
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.logger.Info("Starting file watcher")

	if err := fw.scanExistingFiles(ctx); err != nil {
		fw.logger.WithError(err).Warn("Failed to scan existing files")
	}

	go fw.eventLoop(ctx)

	fw.logger.Info("File watcher started successfully")
	return nil
}

// scanExistingFiles 扫描目录中已有的文件
func (fw *FileWatcher) scanExistingFiles(ctx context.Context) error {
	entries, err := os.ReadDir(fw.watchDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !fw.matchSuffix(entry.Name()) {
			continue
		}
		filePath := filepath.Join(fw.watchDir, entry.Name())
		fw.logger.WithField("file", entry.Name()).Info("Found existing file")
		go fw.handleFile(ctx, filePath)
	}

	return nil
}

// eventLoop 事件循环
func (fw *FileWatcher) eventLoop(ctx context.Context) {
	debounceTimer := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			fw.logger.Info("File watcher context done")
			return
		case <-fw.stopChan:
			fw.logger.Info("File watcher stopped")
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				fw.logger.Warn("Watcher events channel closed")
				return
			}

			// 只处理创建和写入事件
			if event.Op&fsnotify.Create != fsnotify.Create &&
				event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}

			fileName := filepath.Base(event.Name)
			if !fw.matchSuffix(fileName) {
				continue
			}

			fw.logger.WithFields(logrus.Fields{
				"event": event.Op.String(),
				"file":  fileName,
			}).Debug("File event detected")

			// 防抖: 同一文件在短时间内多次触发只处理一次
			if timer, exists := debounceTimer[event.Name]; exists {
				timer.Stop()
			}

			debounceTimer[event.Name] = time.AfterFunc(fw.debounce, func() {
				fw.handleFile(ctx, event.Name)
			})

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				fw.logger.Warn("Watcher errors channel closed")
				return
			}
			fw.logger.WithError(err).Error("Watcher error")
		}
	}
}

// handleFile 等待写入完成后交给处理函数
func (fw *FileWatcher) handleFile(ctx context.Context, filePath string) {
	fw.mu.Lock()
	if fw.processing[filePath] {
		fw.mu.Unlock()
		fw.logger.WithField("file", filePath).Debug("File is already being processed")
		return
	}
	fw.processing[filePath] = true
	fw.mu.Unlock()

	defer func() {
		fw.mu.Lock()
		delete(fw.processing, filePath)
		fw.mu.Unlock()
	}()

	if err := fw.waitForFileReady(filePath); err != nil {
		fw.logger.WithError(err).WithField("file", filePath).Error("File not ready")
		return
	}

	fw.logger.WithField("file", filePath).Info("Processing file")

	if err := fw.handler(ctx, filePath); err != nil {
		fw.logger.WithError(err).WithField("file", filePath).Error("Failed to process file")
		return
	}

	fw.logger.WithField("file", filePath).Info("File processed successfully")
}

// waitForFileReady 文件大小连续两次采样一致视为写入完成
func (fw *FileWatcher) waitForFileReady(filePath string) error {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		file, err := os.OpenFile(filePath, os.O_RDONLY, 0644)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file does not exist")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		info1, err := file.Stat()
		if err != nil {
			file.Close()
			return err
		}

		time.Sleep(500 * time.Millisecond)

		info2, err := file.Stat()
		if err != nil {
			file.Close()
			return err
		}

		file.Close()

		if info1.Size() == info2.Size() && info1.Size() > 0 {
			return nil
		}
	}

	return fmt.Errorf("file not ready after %d attempts", maxAttempts)
}

// matchSuffix 检查文件后缀
func (fw *FileWatcher) matchSuffix(fileName string) bool {
	return strings.HasSuffix(strings.ToLower(fileName), fw.suffix)
}

// Stop 停止文件监控
func (fw *FileWatcher) Stop() error {
	fw.logger.Info("Stopping file watcher")
	close(fw.stopChan)

	if fw.watcher != nil {
		return fw.watcher.Close()
	}

	return nil
}

// GetWatchDir 获取监控目录
func (fw *FileWatcher) GetWatchDir() string {
	return fw.watchDir
}

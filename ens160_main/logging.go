/*
	Copyright (c) 2023 Adrian Batzill
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	logging.go: Initialize logging, watch log file size and rotate, delete old logs

*/

package main

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ricochet2200/go-disk-usage/du"
	log "github.com/sirupsen/logrus"
)

const (
	debugLogFile = "ens160d.log"
	maxLogSize   = 10 * 1024 * 1024 // rotate at 10mb
	minFreeBytes = 50 * 1024 * 1024 // leave 50mb free
	maxLogFiles  = 9
)

type logFiles struct {
	mu     sync.Mutex
	dir    string
	path   string
	handle *os.File

	dupStderr bool
}

func newLogFiles(dir string) *logFiles {
	return &logFiles{dir: dir, path: filepath.Join(dir, debugLogFile)}
}

// rotated returns the rotated log files, newest first.
func (l *logFiles) rotated() []string {
	entries, err := os.ReadDir(l.dir)
	logs := make([]string, 0)
	if err != nil {
		return logs
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), debugLogFile+".") {
			logs = append(logs, filepath.Join(l.dir, e.Name()))
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logSuffix(logs[i]) < logSuffix(logs[j]) })
	return logs
}

func logSuffix(path string) int {
	parts := strings.Split(path, ".")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return -1
	}
	return n
}

func (l *logFiles) rotate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	logs := l.rotated()
	// rename suffix, remove if > maxLogFiles
	for i := len(logs) - 1; i >= 0; i-- {
		logNum := logSuffix(logs[i])
		if logNum < 0 {
			continue
		}
		if logNum >= maxLogFiles {
			os.Remove(logs[i])
		} else {
			os.Rename(logs[i], filepath.Join(l.dir, debugLogFile+"."+strconv.Itoa(logNum+1)))
		}
	}

	// Now rename current log file and re-open
	os.Rename(l.path, l.path+".1")
	l.openLocked()
}

func (l *logFiles) deleteOldest() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	logs := l.rotated()
	if len(logs) == 0 {
		return 0
	}
	oldest := logs[len(logs)-1]
	stat, err := os.Stat(oldest)
	if err != nil {
		return 0
	}
	if err := os.Remove(oldest); err != nil {
		return 0
	}
	return stat.Size()
}

func (l *logFiles) check() {
	if st, err := os.Stat(l.path); err == nil && st.Size() > maxLogSize {
		l.rotate()
	}

	freeBytes := int64(du.NewDiskUsage(l.dir).Free())
	for freeBytes < minFreeBytes {
		deleted := l.deleteOldest()
		if deleted == 0 {
			break
		}
		freeBytes += deleted
	}
}

func (l *logFiles) watch(done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		l.check()
		select {
		case <-ticker.C:
		case <-done:
			return
		}
	}
}

func (l *logFiles) open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked()
}

func (l *logFiles) openLocked() error {
	oldFp := l.handle
	fp, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.WithError(err).Errorf("Failed to open '%s'", l.path)
		return err
	}
	// Keep the logfile handle for later use
	l.handle = fp
	log.SetOutput(io.MultiWriter(fp, os.Stdout))

	// Make sure crash dumps are written to the log as well
	if l.dupStderr {
		syscall.Dup3(int(fp.Fd()), 2, 0)
	}

	if oldFp != nil {
		oldFp.Close()
	}
	return nil
}

func (l *logFiles) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil {
		log.SetOutput(os.Stdout)
		l.handle.Close()
		l.handle = nil
	}
}

func initLogging(dir string, debug bool, done <-chan struct{}) *logFiles {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	files := newLogFiles(dir)
	files.dupStderr = true
	if err := files.open(); err != nil {
		return files
	}
	go files.watch(done)
	return files
}

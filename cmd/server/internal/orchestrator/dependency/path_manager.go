package dependency

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathManager builds and validates paths inside the shared data volume.
//
// Layout: <base>/lessons/<lesson_id>/ holds every artifact of one lesson
// (upload.<ext>, original.mp3, vocals.mp3, accompaniment.mp3, transcript
// files, summary.json, peak series, status.json) plus scratch directories
// for chunked work under work/.
type PathManager struct {
	baseDir string
}

// NewPathManager creates a new PathManager instance.
func NewPathManager(baseDir string) *PathManager {
	return &PathManager{baseDir: baseDir}
}

// BaseDir returns the shared volume root.
func (pm *PathManager) BaseDir() string {
	return pm.baseDir
}

// GetLessonsRoot returns the directory holding all lesson directories.
func (pm *PathManager) GetLessonsRoot() string {
	return filepath.Join(pm.baseDir, "lessons")
}

// GetLessonDir returns the root directory for a lesson.
// Example: GetLessonDir("0190a1b2-...") -> "/data/lessons/0190a1b2-..."
func (pm *PathManager) GetLessonDir(lessonID string) string {
	return filepath.Join(pm.GetLessonsRoot(), lessonID)
}

// GetLessonFile returns the path of a file inside the lesson directory.
func (pm *PathManager) GetLessonFile(lessonID, filename string) string {
	return filepath.Join(pm.GetLessonDir(lessonID), filename)
}

// GetWorkRoot returns the parent of the lesson's scratch directories.
func (pm *PathManager) GetWorkRoot(lessonID string) string {
	return filepath.Join(pm.GetLessonDir(lessonID), "work")
}

// GetChunkBasename generates the base name for a chunk file.
// Example: GetChunkBasename(3) -> "chunk_003"
func (pm *PathManager) GetChunkBasename(chunkIndex int) string {
	return fmt.Sprintf("chunk_%03d", chunkIndex)
}

// GetChunkPattern returns the ffmpeg segment muxer output pattern for dir.
// Example: GetChunkPattern("/tmp/x", "wav") -> "/tmp/x/chunk_%03d.wav"
func (pm *PathManager) GetChunkPattern(dir, ext string) string {
	return filepath.Join(dir, "chunk_%03d."+strings.TrimPrefix(ext, "."))
}

// ValidateLessonID rejects identifiers that could escape the lessons root.
func (pm *PathManager) ValidateLessonID(lessonID string) error {
	if lessonID == "" {
		return fmt.Errorf("lesson id is empty")
	}
	if strings.ContainsAny(lessonID, `/\`) || strings.Contains(lessonID, "..") {
		return fmt.Errorf("lesson id contains path characters: %q", lessonID)
	}
	return nil
}

// ValidatePath checks if a path is within the shared volume and doesn't contain dangerous patterns.
func (pm *PathManager) ValidatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains dangerous characters '..'")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBaseDir, err := filepath.Abs(pm.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	rel, err := filepath.Rel(absBaseDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside shared volume (%s)", path, pm.baseDir)
	}

	for _, prefix := range forbiddenPrefixes {
		if strings.HasPrefix(absPath, prefix+"/") || absPath == prefix {
			return fmt.Errorf("access to system directory %s is forbidden", prefix)
		}
	}

	info, err := os.Lstat(path)
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("symbolic links are not allowed")
	}

	return nil
}

// EnsureLessonDir creates the lesson directory if it doesn't exist.
func (pm *PathManager) EnsureLessonDir(lessonID string) (string, error) {
	if err := pm.ValidateLessonID(lessonID); err != nil {
		return "", err
	}
	dir := pm.GetLessonDir(lessonID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create lesson directory: %w", err)
	}
	return dir, nil
}

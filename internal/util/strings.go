package util

import "strings"

func AsPtr[T any](v T) *T {
	return &v
}

func RemoveNonAlphabetChars(s string) string {
	s = strings.ToLower(s)

	var builder strings.Builder
	for _, r := range s {
		if 'a' <= r && r <= 'z' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// RepositoryDirName derives a directory name from a repository URL, e.g.
// "git@github.com:okarhu/sample-app.git" -> "sample-app".
func RepositoryDirName(repository string) string {
	dir := repository[strings.LastIndex(repository, "/")+1:]
	return strings.TrimSuffix(dir, ".git")
}

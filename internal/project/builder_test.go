package project

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	apperrors "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/errors"
)

const parentPOM = `<?xml version="1.0" encoding="UTF-8"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <modelVersion>4.0.0</modelVersion>
  <groupId>org.acme</groupId>
  <artifactId>acme-parent</artifactId>
  <version>2.1.0</version>
  <packaging>pom</packaging>
  <modules>
    <module>core</module>
  </modules>
  <properties>
    <junit.version>5.10.0</junit.version>
    <encoding>UTF-8</encoding>
  </properties>
  <repositories>
    <repository>
      <id>acme</id>
      <url>https://repo.acme.org/maven2/</url>
    </repository>
  </repositories>
  <dependencyManagement>
    <dependencies>
      <dependency>
        <groupId>org.junit.jupiter</groupId>
        <artifactId>junit-jupiter</artifactId>
        <version>${junit.version}</version>
      </dependency>
    </dependencies>
  </dependencyManagement>
</project>
`

const childPOM = `<?xml version="1.0" encoding="UTF-8"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <modelVersion>4.0.0</modelVersion>
  <parent>
    <groupId>org.acme</groupId>
    <artifactId>acme-parent</artifactId>
    <version>2.1.0</version>
  </parent>
  <artifactId>core</artifactId>
  <name>Core of ${project.parent.artifactId}</name>
  <properties>
    <encoding>ISO-8859-1</encoding>
    <lib.version>${project.version}</lib.version>
  </properties>
  <repositories>
    <repository>
      <id>central</id>
      <url>https://mirror.example.com/central</url>
    </repository>
  </repositories>
  <dependencies>
    <dependency>
      <groupId>org.junit.jupiter</groupId>
      <artifactId>junit-jupiter</artifactId>
      <scope>test</scope>
    </dependency>
    <dependency>
      <groupId>${project.groupId}</groupId>
      <artifactId>acme-api</artifactId>
      <version>${lib.version}</version>
    </dependency>
  </dependencies>
</project>
`

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildInheritsFromRelativeParent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pom.xml"), parentPOM)
	path := writeFile(t, filepath.Join(root, "core", "pom.xml"), childPOM)

	model, problems, err := NewBuilder(nil).Build(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Empty(t, problems)

	assert.Equal(t, "org.acme", model.Coordinate.GroupID)
	assert.Equal(t, "core", model.Coordinate.ArtifactID)
	assert.Equal(t, "2.1.0", model.Coordinate.Version)
	assert.Equal(t, "jar", model.Packaging)
	assert.Equal(t, "Core of acme-parent", model.Name)
	assert.Equal(t, filepath.Join(root, "pom.xml"), model.ParentPath)

	assert.Equal(t, "ISO-8859-1", model.Properties["encoding"])
	assert.Equal(t, "5.10.0", model.Properties["junit.version"])
	assert.Equal(t, "2.1.0", model.Properties["lib.version"])

	require.Len(t, model.Dependencies, 2)
	assert.Equal(t, "org.acme", model.Dependencies[1].GroupID)
	assert.Equal(t, "2.1.0", model.Dependencies[1].Version)
	v, ok := model.ManagedVersion(coordinate.GroupArtifact{GroupID: "org.junit.jupiter", ArtifactID: "junit-jupiter"})
	assert.True(t, ok)
	assert.Equal(t, "5.10.0", v)

	assert.Equal(t, []string{
		"https://mirror.example.com/central",
		"https://repo.acme.org/maven2/",
	}, model.RepositoryURLs(), "central is shadowed by the declared id")

	dir := filepath.Join(root, "core")
	assert.Equal(t, filepath.Join(dir, "target"), model.BuildDirectory)
	assert.Equal(t, filepath.Join(dir, "target", "classes"), model.OutputDirectory)
	bd, ok := model.Property("project.build.directory")
	assert.True(t, ok)
	assert.Equal(t, model.BuildDirectory, bd)
}

func TestBuildAppendsCentral(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "pom.xml"), `<project>
  <modelVersion>4.0.0</modelVersion>
  <groupId>g</groupId><artifactId>a</artifactId><version>1</version>
  <build><directory>out</directory></build>
</project>`)
	model, _, err := NewBuilder(nil).Build(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Equal(t, []string{Central.URL}, model.RepositoryURLs())
	assert.Equal(t, "out", model.BuildDirectory)
}

type repoLocator string

func (r repoLocator) POMPath(c coordinate.Coordinate) string {
	return filepath.Join(string(r), c.GroupID, c.ArtifactID+"-"+c.Version+".pom")
}

func TestBuildResolvesParentFromRepository(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, "org.acme", "acme-parent-2.1.0.pom"), parentPOM)
	path := writeFile(t, filepath.Join(t.TempDir(), "pom.xml"), childPOM)

	_, problems, err := NewBuilder(nil).Build(context.Background(), Request{Path: path})
	require.ErrorIs(t, err, apperrors.ErrDocumentBuild)
	require.Len(t, problems, 2)
	assert.Equal(t, SeverityError, problems[0].Severity)
	assert.Contains(t, problems[0].Message, "Non-resolvable parent POM for org.acme:acme-parent:2.1.0")
	assert.Equal(t, 4, problems[0].Line)
	assert.Contains(t, problems[1].Message, "'dependencies.dependency.version' for org.junit.jupiter:junit-jupiter:jar is missing.")

	model, problems, err := NewBuilder(repoLocator(repo)).Build(context.Background(), Request{Path: path})
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, "org.acme", model.Coordinate.GroupID)
}

func TestBuildReportsSyntaxErrorAsFatal(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "pom.xml"), "<project>\n  <groupId>g</groupId>\n  <artifactId>a</version>\n</project>")
	model, problems, err := NewBuilder(nil).Build(context.Background(), Request{Path: path})
	require.ErrorIs(t, err, apperrors.ErrDocumentBuild)
	assert.Nil(t, model)
	require.Len(t, problems, 1)
	assert.Equal(t, SeverityFatal, problems[0].Severity)
	assert.Equal(t, 3, problems[0].Line)
}

func TestBuildMissingFileIsNotABuildError(t *testing.T) {
	_, problems, err := NewBuilder(nil).Build(context.Background(), Request{Path: filepath.Join(t.TempDir(), "pom.xml")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrDocumentBuild)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Empty(t, problems)
}

func TestBuildValidation(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "pom.xml"), `<project>
  <groupId>g</groupId>
  <artifactId>a</artifactId>
  <version>1.0</version>
  <dependencies>
    <dependency>
      <groupId>x</groupId>
      <artifactId>y</artifactId>
      <version>1</version>
      <scope>compiled</scope>
    </dependency>
    <dependency>
      <groupId>x</groupId>
      <artifactId>y</artifactId>
      <version>2</version>
    </dependency>
    <dependency>
      <groupId>x</groupId>
      <artifactId>z</artifactId>
      <version>${missing.version}</version>
    </dependency>
  </dependencies>
</project>`)
	_, problems, err := NewBuilder(nil).Build(context.Background(), Request{Path: path})
	require.ErrorIs(t, err, apperrors.ErrDocumentBuild)

	var messages []string
	for _, p := range problems {
		messages = append(messages, p.Severity.String()+" "+p.Message)
	}
	assert.Equal(t, []string{
		"ERROR 'modelVersion' is missing.",
		"WARNING 'dependencies.dependency.scope' for x:y:jar must be one of [provided, compile, runtime, test, system] but is 'compiled'.",
		"WARNING 'dependencies.dependency.(groupId:artifactId:type:classifier)' must be unique: x:y:jar -> duplicate declaration of version 2",
		"ERROR 'dependencies.dependency.version' for x:z:jar must be a valid version but is '${missing.version}'.",
	}, messages)
}

func TestBuildWarningsDoNotFail(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "pom.xml"), `<project>
  <modelVersion>4.0.0</modelVersion>
  <groupId>g</groupId><artifactId>a</artifactId><version>1.0</version>
  <properties><a>${b}</a><b>${a}</b></properties>
  <dependencies>
    <dependency><groupId>x</groupId><artifactId>y</artifactId><version>1</version><scope>bogus</scope></dependency>
  </dependencies>
</project>`)
	model, problems, err := NewBuilder(nil).Build(context.Background(), Request{Path: path})
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, SeverityWarning, problems[0].Severity)
	assert.Equal(t, "${a}", model.Properties["a"])
}

func TestBuildDetectsParentCycle(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, filepath.Join(root, "a", "pom.xml"), `<project>
  <modelVersion>4.0.0</modelVersion>
  <parent><groupId>g</groupId><artifactId>b</artifactId><version>1</version><relativePath>../b</relativePath></parent>
  <artifactId>a</artifactId>
</project>`)
	writeFile(t, filepath.Join(root, "b", "pom.xml"), `<project>
  <modelVersion>4.0.0</modelVersion>
  <parent><groupId>g</groupId><artifactId>a</artifactId><version>1</version><relativePath>../a</relativePath></parent>
  <artifactId>b</artifactId>
</project>`)
	_, problems, err := NewBuilder(nil).Build(context.Background(), Request{Path: path})
	require.ErrorIs(t, err, apperrors.ErrDocumentBuild)
	require.NotEmpty(t, problems)
	assert.Contains(t, problems[0].Message, "cycle")
}

func TestModelInterpolate(t *testing.T) {
	m := &Model{
		Coordinate: coordinate.Coordinate{Version: "2.1.0"},
		Properties: map[string]string{"lib.version": "${project.version}-x"},
	}
	v, missing := m.Interpolate("${lib.version}")
	assert.Equal(t, "2.1.0-x", v)
	assert.Empty(t, missing)

	v, missing = m.Interpolate("v${nope}")
	assert.Equal(t, "v${nope}", v)
	assert.Equal(t, "nope", missing)
}

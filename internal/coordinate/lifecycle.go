package coordinate

// Named is a fixed completion value with its description.
type Named struct {
	Name        string
	Description string
}

var Scopes = []Named{
	{"compile", "Default scope. Compile dependencies are available in all classpaths of a project and are propagated to dependent projects."},
	{"provided", "Much like compile, but indicates the JDK or a container is expected to provide the dependency at runtime. Only available on the compilation and test classpath, and not transitive."},
	{"runtime", "Not required for compilation, but for execution. Available in the runtime and test classpaths, but not the compile classpath."},
	{"test", "Not required for normal use of the application; only available for the test compilation and execution phases. Not transitive."},
	{"system", "Similar to provided except that the artifact is provided explicitly through systemPath and is not looked up in a repository."},
	{"import", "Only supported on a dependency of type pom in the dependencyManagement section. Replaced by the dependencies in that POM's dependencyManagement section."},
}

var Phases = []Named{
	{"pre-clean", "Execute processes needed prior to the actual project cleaning."},
	{"clean", "Remove all files generated by the previous build."},
	{"post-clean", "Execute processes needed to finalize the project cleaning."},
	{"validate", "Validate the project is correct and all necessary information is available."},
	{"initialize", "Initialize build state, e.g. set properties or create directories."},
	{"generate-sources", "Generate any source code for inclusion in compilation."},
	{"process-sources", "Process the source code, for example to filter any values."},
	{"generate-resources", "Generate resources for inclusion in the package."},
	{"process-resources", "Copy and process the resources into the destination directory, ready for packaging."},
	{"compile", "Compile the source code of the project."},
	{"process-classes", "Post-process the generated files from compilation, for example to do bytecode enhancement on Java classes."},
	{"generate-test-sources", "Generate any test source code for inclusion in compilation."},
	{"process-test-sources", "Process the test source code, for example to filter any values."},
	{"generate-test-resources", "Create resources for testing."},
	{"process-test-resources", "Copy and process the resources into the test destination directory."},
	{"test-compile", "Compile the test source code into the test destination directory."},
	{"process-test-classes", "Post-process the generated files from test compilation."},
	{"test", "Run tests using a suitable unit testing framework."},
	{"prepare-package", "Perform any operations necessary to prepare a package before the actual packaging."},
	{"package", "Take the compiled code and package it in its distributable format, such as a JAR."},
	{"pre-integration-test", "Perform actions required before integration tests are executed."},
	{"integration-test", "Process and deploy the package if necessary into an environment where integration tests can be run."},
	{"post-integration-test", "Perform actions required after integration tests have been executed."},
	{"verify", "Run any checks to verify the package is valid and meets quality criteria."},
	{"install", "Install the package into the local repository, for use as a dependency in other projects locally."},
	{"deploy", "Copy the final package to the remote repository for sharing with other developers and projects."},
	{"pre-site", "Execute processes needed prior to the actual project site generation."},
	{"site", "Generate the project's site documentation."},
	{"post-site", "Execute processes needed to finalize the site generation, and to prepare for site deployment."},
	{"site-deploy", "Deploy the generated site documentation to the specified web server."},
}

// Lookup returns the description of name in list.
func Lookup(list []Named, name string) (string, bool) {
	for _, n := range list {
		if n.Name == name {
			return n.Description, true
		}
	}
	return "", false
}

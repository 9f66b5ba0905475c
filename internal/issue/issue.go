// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	EngineUnavailableId Id = iota + 1
	PrivilegeRequiredId
	PortInUseId
	DirectoryCreateFailedId
	ValidationFailedId
	ImagePullFailedId
	ImageBuildFailedId
	LaunchFailedId
	VerificationFailedId
	ServiceFileInvalidId
	ServiceLockedId
	DependencyCycleId
	ConfigLoadFailedId
)

type (
	// Id identifies an issue in the catalog.
	Id int

	// Slug is the stable, human-typable name of an issue (e.g. "port-in-use").
	Slug string

	MarkdownMsg string

	HttpLink string

	// Issue is a Markdown explanation of a failure class with remediation steps.
	Issue struct {
		id       Id
		slug     Slug
		mdMsg    MarkdownMsg
		extLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) Slug() Slug {
	return i.slug
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue with glamour using the given style ("auto", "dark", "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.extLinks {
			md.WriteString("\n- <" + string(link) + ">")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	engineUnavailableIssue = &Issue{
		id:   EngineUnavailableId,
		slug: "engine-unavailable",
		mdMsg: `
# No container engine is reachable!

Neither docker nor podman answered. Nothing was changed on this host.

## Things you can try:
- Check the daemon is running:
~~~
$ docker info
$ podman info
~~~

- Pick an engine explicitly with ` + "`--engine docker|podman|docker-api`" + `
- For ` + "`docker-api`" + `, check ` + "`DOCKER_HOST`" + ` points at a live socket`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/"},
	}

	privilegeRequiredIssue = &Issue{
		id:   PrivilegeRequiredId,
		slug: "privilege-required",
		mdMsg: `
# Administrative privilege required!

Provisioning runs containers, publishes host ports and creates host directories,
so it needs root or membership in the ` + "`docker`" + ` group.

## Things you can try:
- Re-run with sudo
- Add yourself to the docker group and log in again:
~~~
$ sudo usermod -aG docker $USER
~~~

- If ` + "`require_root`" + ` is set in your config, group membership is not enough`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/linux-postinstall/"},
	}

	portInUseIssue = &Issue{
		id:   PortInUseId,
		slug: "port-in-use",
		mdMsg: `
# A host port is already taken!

Another process is listening on a port the service wants to publish.
No container was touched.

## Things you can try:
- Find the owner of the port:
~~~
$ ss -ltnup | grep :PORT
~~~

- Stop the conflicting process, or change the host side of the port mapping`,
	}

	directoryCreateFailedIssue = &Issue{
		id:   DirectoryCreateFailedId,
		slug: "directory-create-failed",
		mdMsg: `
# A volume directory could not be created!

The host side of a volume mount did not exist and could not be created.

## Things you can try:
- Check the parent directory exists and is writable
- Check the path is not an existing regular file
- Check the filesystem is not mounted read-only`,
	}

	validationFailedIssue = &Issue{
		id:   ValidationFailedId,
		slug: "validation-failed",
		mdMsg: `
# Host validation failed!

Provisioning stopped before any image or container work. The diagnostic names
the failed check:

- **PrivilegeError**: see ` + "`harbormaster explain privilege-required`" + `
- **PortInUse**: see ` + "`harbormaster explain port-in-use`" + `
- **DirectoryCreateFailed**: see ` + "`harbormaster explain directory-create-failed`",
	}

	imagePullFailedIssue = &Issue{
		id:   ImagePullFailedId,
		slug: "image-pull-failed",
		mdMsg: `
# The image could not be pulled!

No existing container was stopped or removed.

## Things you can try:
- Check the image reference (registry/name:tag) for typos
- Check network access to the registry
- Log in if the registry is private:
~~~
$ docker login REGISTRY
~~~

- Registry rate limits and DNS hiccups are transient; re-running may succeed`,
	}

	imageBuildFailedIssue = &Issue{
		id:   ImageBuildFailedId,
		slug: "image-build-failed",
		mdMsg: `
# The image build failed!

The builder's own error output is shown as the diagnostic. No existing
container was stopped or removed, and the temporary build directory was deleted.

## Things you can try:
- Fix the failing Dockerfile step shown in the output
- Check the ` + "`base_images`" + ` entry for the selected GPU mode exists
- Re-run with ` + "`--verbose`" + ` to stream the full build log`,
	}

	launchFailedIssue = &Issue{
		id:   LaunchFailedId,
		slug: "launch-failed",
		mdMsg: `
# The container could not be started!

Any previous container with the same name has already been removed, so the
service is currently down.

## Things you can try:
- Check the extra run flags are supported by your engine
- Check the ports were not grabbed by another process since validation
- Inspect the engine's error text in the diagnostic`,
		extLinks: []HttpLink{"https://docs.docker.com/reference/cli/docker/container/run/"},
	}

	verificationFailedIssue = &Issue{
		id:   VerificationFailedId,
		slug: "verification-failed",
		mdMsg: `
# The container is not running!

It was started but was not in the running state when checked.
It was left in place so you can inspect it.

## Things you can try:
~~~
$ docker logs NAME
$ docker inspect NAME
~~~

- Raise ` + "`verify.attempts`" + ` for services that take a while to come up`,
	}

	serviceFileInvalidIssue = &Issue{
		id:   ServiceFileInvalidId,
		slug: "service-file-invalid",
		mdMsg: `
# The service file is invalid!

## Things you can try:
- Check the reported path inside the file
- Each service needs exactly one of ` + "`image`" + ` or ` + "`build`" + `
- Validate without side effects:
~~~
$ harbormaster validate services.cue
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	serviceLockedIssue = &Issue{
		id:   ServiceLockedId,
		slug: "service-locked",
		mdMsg: `
# Another provisioning run holds this service!

Runs for the same service name are serialized. Wait for the other run to finish
and try again.`,
	}

	dependencyCycleIssue = &Issue{
		id:   DependencyCycleId,
		slug: "dependency-cycle",
		mdMsg: `
# The services depend on each other in a cycle!

Nothing was provisioned. Remove one of the ` + "`depends_on`" + ` edges named in the error.`,
	}

	configLoadFailedIssue = &Issue{
		id:   ConfigLoadFailedId,
		slug: "config-load-failed",
		mdMsg: `
# The configuration could not be loaded!

## Things you can try:
- Print the effective configuration:
~~~
$ harbormaster config show
~~~

- Recreate the default file with ` + "`harbormaster config init --force`",
	}

	issues = map[Id]*Issue{
		engineUnavailableIssue.Id():     engineUnavailableIssue,
		privilegeRequiredIssue.Id():     privilegeRequiredIssue,
		portInUseIssue.Id():             portInUseIssue,
		directoryCreateFailedIssue.Id(): directoryCreateFailedIssue,
		validationFailedIssue.Id():      validationFailedIssue,
		imagePullFailedIssue.Id():       imagePullFailedIssue,
		imageBuildFailedIssue.Id():      imageBuildFailedIssue,
		launchFailedIssue.Id():          launchFailedIssue,
		verificationFailedIssue.Id():    verificationFailedIssue,
		serviceFileInvalidIssue.Id():    serviceFileInvalidIssue,
		serviceLockedIssue.Id():         serviceLockedIssue,
		dependencyCycleIssue.Id():       dependencyCycleIssue,
		configLoadFailedIssue.Id():      configLoadFailedIssue,
	}
)

// Values returns every issue ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}

// Lookup finds an issue by slug.
func Lookup(slug Slug) (*Issue, bool) {
	for _, i := range issues {
		if i.slug == slug {
			return i, true
		}
	}
	return nil, false
}

package installer

import (
	"strings"
)

func desktopFileName(product string) string {
	return strings.ToLower(product) + ".desktop"
}

// Windows generates PowerShell scripts. The install script self-elevates
// through UAC, copies the bundle into Program Files, and drops WScript.Shell
// shortcuts on the desktop and in the start menu.
type Windows struct{}

func (p *Windows) Name() string {
	return "windows"
}

func (p *Windows) ScriptExt() string {
	return ".ps1"
}

func (p *Windows) ExeName(product string) string {
	return product + ".exe"
}

func (p *Windows) DefaultInstallDir(product string) string {
	return "C:\\Program Files\\" + product
}

func (p *Windows) InstallTemplate() string {
	return windowsInstallTemplate
}

func (p *Windows) UninstallTemplate() string {
	return windowsUninstallTemplate
}

const windowsInstallTemplate = `# {{.Product}} v{{.Version}} installer
$ErrorActionPreference = "Stop"

$identity = [Security.Principal.WindowsIdentity]::GetCurrent()
$principal = New-Object Security.Principal.WindowsPrincipal($identity)
if (-not $principal.IsInRole([Security.Principal.WindowsBuiltInRole]::Administrator)) {
    Write-Host "Administrator privileges are required. Relaunching elevated..."
    Start-Process powershell.exe -Verb RunAs -ArgumentList ("-ExecutionPolicy Bypass -File " + '"' + $MyInvocation.MyCommand.Path + '"')
    exit
}

$installDir = "{{.InstallDir}}"
$sourceDir = Split-Path -Parent $MyInvocation.MyCommand.Path

try {
    if (-not (Test-Path $installDir)) {
        New-Item -ItemType Directory -Path $installDir -Force | Out-Null
    }

    Copy-Item -Path (Join-Path $sourceDir "*") -Destination $installDir -Recurse -Force

    $shell = New-Object -ComObject WScript.Shell
    $target = Join-Path $installDir "{{.Exe}}"

    $desktopLnk = Join-Path ([Environment]::GetFolderPath("Desktop")) "{{.ShortcutLabel}}.lnk"
    $shortcut = $shell.CreateShortcut($desktopLnk)
    $shortcut.TargetPath = $target
    $shortcut.WorkingDirectory = $installDir
    $shortcut.Description = "{{.Product}} v{{.Version}}"
    $shortcut.Save()

    $menuLnk = Join-Path ([Environment]::GetFolderPath("Programs")) "{{.ShortcutLabel}}.lnk"
    $shortcut = $shell.CreateShortcut($menuLnk)
    $shortcut.TargetPath = $target
    $shortcut.WorkingDirectory = $installDir
    $shortcut.Description = "{{.Product}} v{{.Version}}"
    $shortcut.Save()

    Write-Host "{{.Product}} v{{.Version}} installed to $installDir"
} catch {
    Write-Host "Installation failed: $_"
    Write-Host ""
    Write-Host "To finish the installation manually, run the following from this folder"
    Write-Host "in an elevated PowerShell session:"
    Write-Host "  New-Item -ItemType Directory -Path '{{.InstallDir}}' -Force"
    Write-Host "  Copy-Item -Path '.\*' -Destination '{{.InstallDir}}' -Recurse -Force"
    Write-Host "Then create a shortcut to '{{.InstallDir}}\{{.Exe}}' where you want it."
    exit 1
}
`

const windowsUninstallTemplate = `# {{.Product}} v{{.Version}} uninstaller
$ErrorActionPreference = "Continue"

$identity = [Security.Principal.WindowsIdentity]::GetCurrent()
$principal = New-Object Security.Principal.WindowsPrincipal($identity)
if (-not $principal.IsInRole([Security.Principal.WindowsBuiltInRole]::Administrator)) {
    Write-Host "Administrator privileges are required. Relaunching elevated..."
    Start-Process powershell.exe -Verb RunAs -ArgumentList ("-ExecutionPolicy Bypass -File " + '"' + $MyInvocation.MyCommand.Path + '"')
    exit
}

Stop-Process -Name "{{.Product}}" -Force -ErrorAction SilentlyContinue

$installDir = "{{.InstallDir}}"
if (Test-Path $installDir) {
    Remove-Item -Recurse -Force $installDir
}

$desktopLnk = Join-Path ([Environment]::GetFolderPath("Desktop")) "{{.ShortcutLabel}}.lnk"
if (Test-Path $desktopLnk) {
    Remove-Item -Force $desktopLnk
}

$menuLnk = Join-Path ([Environment]::GetFolderPath("Programs")) "{{.ShortcutLabel}}.lnk"
if (Test-Path $menuLnk) {
    Remove-Item -Force $menuLnk
}

Write-Host "{{.Product}} has been removed."
`

// Linux generates bash scripts. The install script re-executes itself under
// sudo, copies the bundle into /opt, and writes freedesktop .desktop entries
// for the launcher menu and the invoking user's desktop.
type Linux struct{}

func (p *Linux) Name() string {
	return "linux"
}

func (p *Linux) ScriptExt() string {
	return ".sh"
}

func (p *Linux) ExeName(product string) string {
	return product
}

func (p *Linux) DefaultInstallDir(product string) string {
	return "/opt/" + strings.ToLower(product)
}

func (p *Linux) InstallTemplate() string {
	return linuxInstallTemplate
}

func (p *Linux) UninstallTemplate() string {
	return linuxUninstallTemplate
}

const linuxInstallTemplate = `#!/bin/bash
# {{.Product}} v{{.Version}} installer
set -e

if [ "$(id -u)" -ne 0 ]; then
    echo "Root privileges are required. Re-running with sudo..."
    exec sudo "$0" "$@"
fi

INSTALL_DIR="{{.InstallDir}}"
SOURCE_DIR="$(cd "$(dirname "$0")" && pwd)"

on_error() {
    echo "Installation failed." >&2
    echo "" >&2
    echo "To finish the installation manually, run the following from this folder:" >&2
    echo "  sudo mkdir -p $INSTALL_DIR" >&2
    echo "  sudo cp -R . $INSTALL_DIR" >&2
    echo "Then create a launcher for $INSTALL_DIR/{{.Exe}} where you want it." >&2
    exit 1
}
trap on_error ERR

mkdir -p "$INSTALL_DIR"
cp -R "$SOURCE_DIR"/. "$INSTALL_DIR"/
chmod +x "$INSTALL_DIR/{{.Exe}}"

cat > "/usr/share/applications/{{.DesktopFile}}" <<EOF
[Desktop Entry]
Type=Application
Name={{.ShortcutLabel}}
Comment={{.Product}} v{{.Version}}
Exec=$INSTALL_DIR/{{.Exe}}
Path=$INSTALL_DIR
Terminal=false
Categories=Office;
EOF

DESKTOP_DIR="${SUDO_USER:+/home/$SUDO_USER/Desktop}"
DESKTOP_DIR="${DESKTOP_DIR:-$HOME/Desktop}"
if [ -d "$DESKTOP_DIR" ]; then
    cp "/usr/share/applications/{{.DesktopFile}}" "$DESKTOP_DIR/{{.DesktopFile}}"
    chmod +x "$DESKTOP_DIR/{{.DesktopFile}}"
fi

echo "{{.Product}} v{{.Version}} installed to $INSTALL_DIR"
`

const linuxUninstallTemplate = `#!/bin/bash
# {{.Product}} v{{.Version}} uninstaller

if [ "$(id -u)" -ne 0 ]; then
    echo "Root privileges are required. Re-running with sudo..."
    exec sudo "$0" "$@"
fi

pkill -x "{{.Exe}}" 2>/dev/null || true

rm -rf "{{.InstallDir}}"
rm -f "/usr/share/applications/{{.DesktopFile}}"

DESKTOP_DIR="${SUDO_USER:+/home/$SUDO_USER/Desktop}"
DESKTOP_DIR="${DESKTOP_DIR:-$HOME/Desktop}"
rm -f "$DESKTOP_DIR/{{.DesktopFile}}"

echo "{{.Product}} has been removed."
`
